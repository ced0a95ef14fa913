/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// PGLogSink stores user-facing evaluation log entries in Postgres and
// serves the per-rule read API.
type PGLogSink struct {
	pool *pgxpool.Pool
}

// NewPGLogSink wraps a pgx pool as a log sink.
func NewPGLogSink(pool *pgxpool.Pool) *PGLogSink {
	return &PGLogSink{pool: pool}
}

// Append implements LogSink.
func (s *PGLogSink) Append(ctx context.Context, entry LogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluation_logs (timestamp, level, workspace_id, rule_id, message, markers)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.Timestamp,
		string(entry.Level),
		entry.WorkspaceID,
		entry.RuleID,
		entry.Message,
		entry.Markers,
	)
	if err != nil {
		return fmt.Errorf("appending evaluation log for rule %s: %w", entry.RuleID, err)
	}
	return nil
}

// ListEntries implements LogSink. Results are ordered by timestamp
// descending and paginated.
func (s *PGLogSink) ListEntries(ctx context.Context, q LogQuery) ([]LogEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.RuleID != uuid.Nil {
		where = append(where, "rule_id="+arg(q.RuleID))
	}
	if q.WorkspaceID != "" {
		where = append(where, "workspace_id="+arg(q.WorkspaceID))
	}
	if q.Level != "" {
		where = append(where, "level="+arg(string(q.Level)))
	}

	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	query := "SELECT timestamp, level, workspace_id, rule_id, message, markers FROM evaluation_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT " + arg(size) + " OFFSET " + arg((page-1)*size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evaluation logs: %w", err)
	}
	defer rows.Close()

	out := make([]LogEntry, 0, size)
	for rows.Next() {
		var (
			e     LogEntry
			level string
		)
		if err := rows.Scan(&e.Timestamp, &level, &e.WorkspaceID, &e.RuleID, &e.Message, &e.Markers); err != nil {
			return nil, fmt.Errorf("scanning evaluation log row: %w", err)
		}
		e.Level = LogLevel(level)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evaluation log rows: %w", err)
	}
	return out, nil
}
