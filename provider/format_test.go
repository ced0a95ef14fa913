/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/tracelens/onlineval/provider"
	"github.com/tracelens/onlineval/rules"
)

func testFormat() *provider.ResponseFormat {
	return &provider.ResponseFormat{
		Name: "scores",
		Fields: []rules.OutputSchemaField{
			{Name: "Relevance", Type: rules.FieldInteger, Description: "Relevance 1-5"},
			{Name: "Conciseness", Type: rules.FieldDouble},
			{Name: "Technical Accuracy", Type: rules.FieldBoolean},
		},
	}
}

func TestJSONSchemaShape(t *testing.T) {
	raw, err := json.Marshal(testFormat().JSONSchema())
	if err != nil {
		t.Fatalf("marshaling schema: %v", err)
	}
	doc := string(raw)

	tests := []struct {
		path string
		want string
	}{
		{"type", "object"},
		{`properties.Relevance.properties.score.type`, "integer"},
		{`properties.Conciseness.properties.score.type`, "number"},
		{`properties.Technical Accuracy.properties.score.type`, "boolean"},
		{`properties.Relevance.properties.reason.type`, "string"},
		{`properties.Relevance.properties.score.description`, "Relevance 1-5"},
	}
	for _, tt := range tests {
		if got := gjson.Get(doc, tt.path).String(); got != tt.want {
			t.Errorf("schema path %q: got = %q, wanted = %q", tt.path, got, tt.want)
		}
	}

	required := gjson.Get(doc, "required")
	if got := len(required.Array()); got != 3 {
		t.Errorf("top-level required entries: got = %d, wanted = 3", got)
	}
	perField := gjson.Get(doc, "properties.Relevance.required").Array()
	if len(perField) != 2 || perField[0].String() != "score" || perField[1].String() != "reason" {
		t.Errorf("per-field required: got = %v, wanted = [score reason]", perField)
	}
}

func TestDirectiveDemandsSingleJSONObject(t *testing.T) {
	directive, err := testFormat().Directive()
	if err != nil {
		t.Fatalf("Directive() unexpected error: %v", err)
	}
	if !strings.Contains(directive, "single JSON object") {
		t.Errorf("Directive() missing instruction, got: %q", directive)
	}
	if !strings.Contains(directive, `"Relevance"`) {
		t.Errorf("Directive() missing schema payload, got: %q", directive)
	}
}
