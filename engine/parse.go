/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tracelens/onlineval/rules"
	"github.com/tracelens/onlineval/sinks"
)

// judgeField is one per-field object of a judge response.
type judgeField struct {
	Score  json.RawMessage `json:"score"`
	Reason string          `json:"reason"`
}

// parseScores turns the judge's response text into feedback scores, one per
// schema field present in the response. Booleans coerce to 1/0; numeric
// values pass through as returned, even when they disagree with the field's
// declared type. A response that is not a JSON object is an error; the
// caller logs it and emits zero scores.
func parseScores(entityID uuid.UUID, fields []rules.OutputSchemaField, text string) ([]sinks.FeedbackScore, error) {
	var decoded map[string]judgeField
	if err := json.Unmarshal([]byte(extractJSON(text)), &decoded); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	out := make([]sinks.FeedbackScore, 0, len(fields))
	for _, field := range fields {
		jf, ok := decoded[field.Name]
		if !ok {
			continue
		}
		value, err := scoreValue(jf.Score)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		out = append(out, sinks.FeedbackScore{
			EntityID: entityID,
			Name:     field.Name,
			Value:    value,
			Reason:   jf.Reason,
			Source:   sinks.SourceOnlineScoring,
		})
	}
	return out, nil
}

func scoreValue(raw json.RawMessage) (float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("score is not valid JSON: %w", err)
	}
	switch s := v.(type) {
	case float64:
		return s, nil
	case bool:
		if s {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("score %s is neither numeric nor boolean", raw)
	}
}

// extractJSON strips markdown code fences some models wrap around their
// output and returns the bare JSON text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```json\n"); start != -1 {
		body := text[start+len("```json\n"):]
		if end := strings.Index(body, "```"); end != -1 {
			return strings.TrimSpace(body[:end])
		}
		return strings.TrimSpace(body)
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
