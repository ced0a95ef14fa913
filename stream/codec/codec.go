/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package codec decodes stream envelopes. The codec is named per stream in
// the consumer configuration so producers and consumers can roll formats
// independently.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tracelens/onlineval/entity"
)

// Envelope is one decoded stream message. Trace and span streams carry
// entity payloads; thread streams carry thread ids the consumer resolves
// before scoring. RuleID, when set, routes the message to a single rule.
type Envelope struct {
	WorkspaceID string          `json:"workspace_id"`
	UserName    string          `json:"user_name,omitempty"`
	ProjectID   uuid.UUID       `json:"project_id"`
	RuleID      uuid.UUID       `json:"rule_id,omitempty"`
	Entities    []entity.Scored `json:"entities,omitempty"`
	ThreadIDs   []string        `json:"thread_ids,omitempty"`
}

// Codec turns one raw stream payload into an envelope.
type Codec interface {
	Name() string
	Decode(raw []byte) (*Envelope, error)
}

// JSON decodes plain JSON envelopes.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding json envelope: %w", err)
	}
	if env.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("envelope has no project id")
	}
	return &env, nil
}

// GzipJSON decodes gzip-compressed JSON envelopes, used by producers of
// large trace payloads.
type GzipJSON struct{}

func (GzipJSON) Name() string { return "gzip_json" }

func (GzipJSON) Decode(raw []byte) (*Envelope, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("opening gzip envelope: %w", err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("inflating envelope: %w", err)
	}
	return JSON{}.Decode(inflated)
}

// ByName resolves a configured codec name.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "gzip_json":
		return GzipJSON{}, nil
	default:
		return nil, fmt.Errorf("unknown stream codec %q", name)
	}
}
