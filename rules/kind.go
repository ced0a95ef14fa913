/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules

import "fmt"

// Kind identifies which entity an evaluator scores and how it scores it.
type Kind string

const (
	// TraceLLMJudge scores whole traces by prompting a language model.
	TraceLLMJudge Kind = "trace_llm_judge"
	// SpanLLMJudge scores individual spans by prompting a language model.
	SpanLLMJudge Kind = "span_llm_judge"
	// ThreadLLMJudge scores conversation threads by prompting a language model.
	ThreadLLMJudge Kind = "thread_llm_judge"
	// TracePythonMetric scores whole traces with user-provided metric code.
	TracePythonMetric Kind = "trace_python_metric"
	// SpanPythonMetric scores individual spans with user-provided metric code.
	SpanPythonMetric Kind = "span_python_metric"
	// ThreadPythonMetric scores conversation threads with user-provided metric code.
	ThreadPythonMetric Kind = "thread_python_metric"
)

// Target is the class of entity a kind applies to.
type Target string

const (
	TargetTrace  Target = "trace"
	TargetSpan   Target = "span"
	TargetThread Target = "thread"
)

// Target returns the entity class the kind applies to.
func (k Kind) Target() Target {
	switch k {
	case TraceLLMJudge, TracePythonMetric:
		return TargetTrace
	case SpanLLMJudge, SpanPythonMetric:
		return TargetSpan
	case ThreadLLMJudge, ThreadPythonMetric:
		return TargetThread
	default:
		return ""
	}
}

// IsLLMJudge reports whether the kind scores by prompting a language model.
func (k Kind) IsLLMJudge() bool {
	switch k {
	case TraceLLMJudge, SpanLLMJudge, ThreadLLMJudge:
		return true
	case TracePythonMetric, SpanPythonMetric, ThreadPythonMetric:
		return false
	default:
		return false
	}
}

// IsPythonMetric reports whether the kind dispatches to the external metric runner.
func (k Kind) IsPythonMetric() bool {
	switch k {
	case TracePythonMetric, SpanPythonMetric, ThreadPythonMetric:
		return true
	case TraceLLMJudge, SpanLLMJudge, ThreadLLMJudge:
		return false
	default:
		return false
	}
}

// Validate returns an error for kinds outside the known taxonomy.
func (k Kind) Validate() error {
	switch k {
	case TraceLLMJudge, SpanLLMJudge, ThreadLLMJudge,
		TracePythonMetric, SpanPythonMetric, ThreadPythonMetric:
		return nil
	default:
		return fmt.Errorf("unknown evaluator kind %q", string(k))
	}
}
