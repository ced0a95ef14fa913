/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// PGScoreSink writes feedback-score batches to Postgres. Writes are
// retried briefly on transient failures; a batch is one round trip.
type PGScoreSink struct {
	pool *pgxpool.Pool
}

// NewPGScoreSink wraps a pgx pool as a score sink.
func NewPGScoreSink(pool *pgxpool.Pool) *PGScoreSink {
	return &PGScoreSink{pool: pool}
}

// SubmitBatch implements ScoreSink.
func (s *PGScoreSink) SubmitBatch(ctx context.Context, workspaceID string, scores []FeedbackScore) error {
	if len(scores) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []any{sc.EntityID, workspaceID, sc.Name, sc.Value, sc.Reason, sc.Source})
	}

	b := retry.NewFibonacci(100 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(3, b), func(ctx context.Context) error {
		_, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{"feedback_scores"},
			[]string{"entity_id", "workspace_id", "name", "value", "reason", "source"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("writing %d feedback scores: %w", len(scores), err)
	}

	clog.FromContext(ctx).With("workspace_id", workspaceID).
		With("scores", len(scores)).
		Info("Feedback score batch written")
	return nil
}
