/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package sinks defines the engine's output boundaries: the batched
// feedback-score write-back and the user-facing evaluation log that rule
// owners query per rule. Postgres implementations are provided; the engine
// itself only depends on the ports.
package sinks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SourceOnlineScoring marks scores produced by this engine.
const SourceOnlineScoring = "online_scoring"

// FeedbackScore is one named numeric evaluation result attached to a scored
// entity. Ownership passes to the sink on submission.
type FeedbackScore struct {
	EntityID uuid.UUID `json:"entity_id"`
	Name     string    `json:"name"`
	Value    float64   `json:"value"`
	Reason   string    `json:"reason,omitempty"`
	Source   string    `json:"source"`
}

// ScoreSink accepts feedback scores in batches, one batch per engine
// evaluation cycle.
type ScoreSink interface {
	SubmitBatch(ctx context.Context, workspaceID string, scores []FeedbackScore) error
}

// LogLevel is the severity of one user-facing log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// LogEntry is one user-facing evaluation log line, keyed by the rule that
// produced it so rule owners can inspect their own failures.
type LogEntry struct {
	Timestamp   time.Time         `json:"timestamp"`
	Level       LogLevel          `json:"level"`
	WorkspaceID string            `json:"workspace_id"`
	RuleID      uuid.UUID         `json:"rule_id"`
	Message     string            `json:"message"`
	Markers     map[string]string `json:"markers,omitempty"`
}

// LogQuery filters and paginates user-facing log reads. Zero values mean
// "any". Page is 1-based.
type LogQuery struct {
	RuleID      uuid.UUID
	WorkspaceID string
	Level       LogLevel
	Page        int
	Size        int
}

// LogSink records user-facing entries and serves the rule owners' read API,
// ordered by timestamp descending.
type LogSink interface {
	Append(ctx context.Context, entry LogEntry) error
	ListEntries(ctx context.Context, q LogQuery) ([]LogEntry, error)
}
