/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tracelens/onlineval/entity"
)

// PGThreadStore materializes conversation threads from the platform's
// message table. Messages come back in chronological order so the engine's
// transcript is deterministic.
type PGThreadStore struct {
	pool *pgxpool.Pool
}

// NewPGThreadStore wraps a pgx pool as a thread store.
func NewPGThreadStore(pool *pgxpool.Pool) *PGThreadStore {
	return &PGThreadStore{pool: pool}
}

// FetchThreads implements ThreadStore. Unknown thread ids are skipped.
func (s *PGThreadStore) FetchThreads(ctx context.Context, projectID uuid.UUID, threadIDs []string) ([]entity.Scored, error) {
	if len(threadIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT thread_id, role, content, created_at
		FROM thread_messages
		WHERE project_id=$1
		  AND thread_id=ANY($2)
		ORDER BY thread_id, created_at ASC
	`,
		projectID,
		threadIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread messages: %w", err)
	}
	defer rows.Close()

	byThread := make(map[string][]entity.Message, len(threadIDs))
	for rows.Next() {
		var (
			threadID  string
			m         entity.Message
			createdAt time.Time
		)
		if err := rows.Scan(&threadID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning thread message: %w", err)
		}
		m.CreatedAt = createdAt
		byThread[threadID] = append(byThread[threadID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread messages: %w", err)
	}

	out := make([]entity.Scored, 0, len(byThread))
	for _, id := range threadIDs {
		msgs, ok := byThread[id]
		if !ok {
			continue
		}
		out = append(out, entity.Scored{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)),
			ThreadID: id,
			Messages: msgs,
		})
	}
	return out, nil
}
