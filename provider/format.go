/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/tracelens/onlineval/rules"
)

// ResponseFormat describes the structured output a judge call must produce:
// one object per configured schema field, each carrying a typed score and a
// string reason.
type ResponseFormat struct {
	Name   string
	Fields []rules.OutputSchemaField
}

// scoreType maps a rule field type onto its JSON schema type.
func scoreType(t rules.FieldType) string {
	switch t {
	case rules.FieldInteger:
		return "integer"
	case rules.FieldDouble:
		return "number"
	case rules.FieldBoolean:
		return "boolean"
	default:
		return "number"
	}
}

// JSONSchema builds the JSON schema for the format, used by providers with
// native schema-constrained decoding.
func (f *ResponseFormat) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	required := make([]string, 0, len(f.Fields))

	for _, field := range f.Fields {
		fieldProps := jsonschema.NewProperties()
		fieldProps.Set("score", &jsonschema.Schema{
			Type:        scoreType(field.Type),
			Description: field.Description,
		})
		fieldProps.Set("reason", &jsonschema.Schema{
			Type:        "string",
			Description: "Justification for the score.",
		})
		props.Set(field.Name, &jsonschema.Schema{
			Type:                 "object",
			Properties:           fieldProps,
			Required:             []string{"score", "reason"},
			AdditionalProperties: jsonschema.FalseSchema,
		})
		required = append(required, field.Name)
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// Directive renders an instruction-injection block for providers without
// native schema enforcement: an explicit demand for a single JSON object
// matching the schema.
func (f *ResponseFormat) Directive() (string, error) {
	raw, err := json.Marshal(f.JSONSchema())
	if err != nil {
		return "", fmt.Errorf("marshaling response schema: %w", err)
	}
	return fmt.Sprintf(
		"Respond with a single JSON object and nothing else. "+
			"The object must conform to this JSON schema:\n%s", raw), nil
}
