/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package entity holds the snapshot of a trace, span, or conversation thread
// that the scoring engine evaluates. Snapshots are read-only once decoded
// from the stream envelope.
package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tracelens/onlineval/rules"
)

// Message is one turn of a conversation thread, in chronological order.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Scored is the entity snapshot handed to the scoring engine.
type Scored struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name,omitempty"`
	ThreadID string          `json:"thread_id,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Tags     []string        `json:"tags,omitempty"`

	// DurationMillis is the wall-clock duration of the trace or span.
	DurationMillis float64 `json:"duration_millis,omitempty"`

	// Messages is populated for thread entities only.
	Messages []Message `json:"messages,omitempty"`
}

// Section returns the raw JSON tree for one variable-mapping section.
func (s *Scored) Section(sec rules.Section) json.RawMessage {
	switch sec {
	case rules.SectionInput:
		return s.Input
	case rules.SectionOutput:
		return s.Output
	case rules.SectionMetadata:
		return s.Metadata
	default:
		return nil
	}
}

// Lookup walks the JSON tree of a section by a dotted path and returns the
// value rendered as a string. Whole-section lookups use an empty path.
// The second return is false when the path does not resolve.
func (s *Scored) Lookup(sec rules.Section, path string) (string, bool) {
	raw := s.Section(sec)
	if len(raw) == 0 {
		return "", false
	}
	if path == "" {
		return strings.TrimSpace(string(raw)), true
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// Transcript renders the thread's messages in chronological order into one
// context block. Non-thread entities return an empty string.
func (s *Scored) Transcript() string {
	if len(s.Messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, m := range s.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
