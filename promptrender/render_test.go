/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptrender_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tracelens/onlineval/promptrender"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{{
		name:     "simple substitution",
		template: "Rate {{answer}} for accuracy.",
		values:   map[string]string{"answer": "the sky is green"},
		want:     "Rate the sky is green for accuracy.",
	}, {
		name:     "whitespace around name is tolerated",
		template: "Rate {{  answer  }} now.",
		values:   map[string]string{"answer": "x"},
		want:     "Rate x now.",
	}, {
		name:     "unknown variable left verbatim",
		template: "Rate {{answer}} against {{reference}}.",
		values:   map[string]string{"answer": "x"},
		want:     "Rate x against {{reference}}.",
	}, {
		name:     "repeated variable",
		template: "{{q}} vs {{q}}",
		values:   map[string]string{"q": "same"},
		want:     "same vs same",
	}, {
		name:     "unclosed binding emitted verbatim",
		template: "before {{oops after",
		values:   map[string]string{"oops": "x"},
		want:     "before {{oops after",
	}, {
		name:     "invalid identifier left verbatim",
		template: "keep {{1bad}} and {{a b}}",
		values:   map[string]string{"1bad": "x"},
		want:     "keep {{1bad}} and {{a b}}",
	}, {
		name:     "no placeholders",
		template: "plain text",
		values:   map[string]string{"answer": "x"},
		want:     "plain text",
	}, {
		name:     "empty template",
		template: "",
		values:   nil,
		want:     "",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := promptrender.Render(tt.template, tt.values)
			if got != tt.want {
				t.Errorf("Render(): got = %q, wanted = %q", got, tt.want)
			}
		})
	}
}

func TestVariables(t *testing.T) {
	got := promptrender.Variables("Compare {{input}} to {{ output }}, ignore {{9x}} and {{input}}.")
	want := map[string]struct{}{
		"input":  {},
		"output": {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Variables() mismatch (-want +got):\n%s", diff)
	}
}
