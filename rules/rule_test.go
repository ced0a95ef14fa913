/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/tracelens/onlineval/rules"
)

func validJudgeRule() rules.Rule {
	return rules.Rule{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Name:         "hallucination",
		Kind:         rules.TraceLLMJudge,
		SamplingRate: 1.0,
		Enabled:      true,
		LLMJudge: &rules.LLMJudgeCode{
			Model: rules.ModelParams{Name: "gpt-4o"},
			Messages: []rules.PromptMessage{{
				Role:    "user",
				Content: "Rate {{output}} for factuality.",
			}},
			Schema: []rules.OutputSchemaField{{
				Name: "Factuality",
				Type: rules.FieldDouble,
			}},
		},
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*rules.Rule)
		wantErr bool
	}{{
		name:   "valid llm judge rule",
		mutate: func(*rules.Rule) {},
	}, {
		name:    "unknown kind",
		mutate:  func(r *rules.Rule) { r.Kind = "surprise" },
		wantErr: true,
	}, {
		name:    "sampling rate above one",
		mutate:  func(r *rules.Rule) { r.SamplingRate = 1.5 },
		wantErr: true,
	}, {
		name:    "negative sampling rate",
		mutate:  func(r *rules.Rule) { r.SamplingRate = -0.1 },
		wantErr: true,
	}, {
		name:    "judge kind without judge payload",
		mutate:  func(r *rules.Rule) { r.LLMJudge = nil },
		wantErr: true,
	}, {
		name: "judge kind with python payload",
		mutate: func(r *rules.Rule) {
			r.Python = &rules.PythonCode{Metric: "equals"}
		},
		wantErr: true,
	}, {
		name: "python kind with judge payload",
		mutate: func(r *rules.Rule) {
			r.Kind = rules.TracePythonMetric
		},
		wantErr: true,
	}, {
		name: "valid python rule",
		mutate: func(r *rules.Rule) {
			r.Kind = rules.ThreadPythonMetric
			r.LLMJudge = nil
			r.Python = &rules.PythonCode{Metric: "conversation_coherence"}
		},
	}, {
		name: "judge payload without schema",
		mutate: func(r *rules.Rule) {
			r.LLMJudge.Schema = nil
		},
		wantErr: true,
	}, {
		name: "filter missing value",
		mutate: func(r *rules.Rule) {
			r.Filters = []rules.Filter{{Field: "name", Operator: rules.OpContains}}
		},
		wantErr: true,
	}, {
		name: "nullary filter needs no value",
		mutate: func(r *rules.Rule) {
			r.Filters = []rules.Filter{{Field: "output", Operator: rules.OpIsNotEmpty}}
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validJudgeRule()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleNormalizeClampsSamplingRate(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{{
		name: "below range",
		in:   -3,
		want: 0,
	}, {
		name: "above range",
		in:   2.5,
		want: 1,
	}, {
		name: "in range untouched",
		in:   0.25,
		want: 0.25,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validJudgeRule()
			r.SamplingRate = tt.in
			r.Normalize()
			if r.SamplingRate != tt.want {
				t.Errorf("Normalize() sampling rate: got = %v, wanted = %v", r.SamplingRate, tt.want)
			}
		})
	}
}

func TestKindTarget(t *testing.T) {
	tests := []struct {
		kind rules.Kind
		want rules.Target
	}{
		{rules.TraceLLMJudge, rules.TargetTrace},
		{rules.SpanLLMJudge, rules.TargetSpan},
		{rules.ThreadLLMJudge, rules.TargetThread},
		{rules.TracePythonMetric, rules.TargetTrace},
		{rules.SpanPythonMetric, rules.TargetSpan},
		{rules.ThreadPythonMetric, rules.TargetThread},
	}

	for _, tt := range tests {
		if got := tt.kind.Target(); got != tt.want {
			t.Errorf("%s.Target(): got = %q, wanted = %q", tt.kind, got, tt.want)
		}
	}
}
