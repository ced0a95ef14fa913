/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"fmt"

	"github.com/google/uuid"
)

// Section names the part of an entity a variable mapping reads from.
type Section string

const (
	SectionInput    Section = "input"
	SectionOutput   Section = "output"
	SectionMetadata Section = "metadata"
)

// VariableMapping binds a prompt template variable either to a JSON path
// inside one section of the scored entity, or to a literal string.
type VariableMapping struct {
	Name    string  `json:"name"`
	Section Section `json:"section,omitempty"`
	Path    string  `json:"path,omitempty"`
	Literal string  `json:"literal,omitempty"`
}

// IsLiteral reports whether the mapping carries a fixed string instead of a
// path into the entity.
func (m VariableMapping) IsLiteral() bool {
	return m.Section == "" && m.Path == ""
}

// FieldType is the score type of one structured-output schema field.
type FieldType string

const (
	FieldInteger FieldType = "integer"
	FieldDouble  FieldType = "double"
	FieldBoolean FieldType = "boolean"
)

// OutputSchemaField describes one named score the judge must return.
type OutputSchemaField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// PromptMessage is one message of an LLM-judge prompt template. Content may
// contain {{variable}} placeholders resolved per entity.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelParams selects the judge model and its decoding parameters.
type ModelParams struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// LLMJudgeCode is the payload of an LLM-judge kind: the prompt template,
// the variable mappings feeding it, and the output schema the response
// must conform to.
type LLMJudgeCode struct {
	Model     ModelParams         `json:"model"`
	Messages  []PromptMessage     `json:"messages"`
	Variables []VariableMapping   `json:"variables,omitempty"`
	Schema    []OutputSchemaField `json:"schema"`
}

// PythonCode is the payload of a python-metric kind, executed by the
// external metric runner.
type PythonCode struct {
	Metric    string            `json:"metric"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Rule is one automation rule evaluator: a configured scoring rule bound to
// a project and an entity kind. Exactly one of LLMJudge / Python is set,
// matching Kind.
type Rule struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	SamplingRate float64   `json:"sampling_rate"`
	Enabled      bool      `json:"enabled"`
	Filters      []Filter  `json:"filters,omitempty"`

	LLMJudge *LLMJudgeCode `json:"llm_judge,omitempty"`
	Python   *PythonCode   `json:"python,omitempty"`
}

// Normalize clamps the sampling rate into [0, 1].
func (r *Rule) Normalize() {
	if r.SamplingRate < 0 {
		r.SamplingRate = 0
	}
	if r.SamplingRate > 1 {
		r.SamplingRate = 1
	}
}

// Validate checks the rule invariants: a known kind, a sampling rate in
// [0, 1], well-formed filters, and a code payload whose shape matches the
// kind.
func (r *Rule) Validate() error {
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if r.SamplingRate < 0 || r.SamplingRate > 1 {
		return fmt.Errorf("sampling rate %v outside [0, 1]", r.SamplingRate)
	}
	for _, f := range r.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.Name, err)
		}
	}
	switch {
	case r.Kind.IsLLMJudge():
		if r.LLMJudge == nil || r.Python != nil {
			return fmt.Errorf("rule %s: kind %s requires an llm_judge payload", r.Name, r.Kind)
		}
		if len(r.LLMJudge.Messages) == 0 {
			return fmt.Errorf("rule %s: llm_judge payload has no messages", r.Name)
		}
		if len(r.LLMJudge.Schema) == 0 {
			return fmt.Errorf("rule %s: llm_judge payload has no output schema", r.Name)
		}
	case r.Kind.IsPythonMetric():
		if r.Python == nil || r.LLMJudge != nil {
			return fmt.Errorf("rule %s: kind %s requires a python payload", r.Name, r.Kind)
		}
		if r.Python.Metric == "" {
			return fmt.Errorf("rule %s: python payload has no metric", r.Name)
		}
	}
	return nil
}
