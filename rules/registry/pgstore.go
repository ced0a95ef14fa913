/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tracelens/onlineval/rules"
)

// PGStore is a read-only Store over the management layer's rule table.
// Rule CRUD stays with the management service; the engine only selects.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool as a rule store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ListEnabled implements Store.
func (s *PGStore) ListEnabled(ctx context.Context, projectID uuid.UUID, kind rules.Kind) ([]rules.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, kind, sampling_rate, filters, code
		FROM automation_rule_evaluators
		WHERE project_id=$1
		  AND kind=$2
		  AND enabled
		ORDER BY created_at ASC
	`,
		projectID,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	out := make([]rules.Rule, 0, 4)
	for rows.Next() {
		var (
			r       rules.Rule
			kindStr string
			filters []byte
			code    []byte
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &kindStr, &r.SamplingRate, &filters, &code); err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		r.Kind = rules.Kind(kindStr)
		r.Enabled = true

		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &r.Filters); err != nil {
				return nil, fmt.Errorf("decoding filters for rule %s: %w", r.ID, err)
			}
		}
		switch {
		case r.Kind.IsLLMJudge():
			r.LLMJudge = &rules.LLMJudgeCode{}
			if err := json.Unmarshal(code, r.LLMJudge); err != nil {
				return nil, fmt.Errorf("decoding judge code for rule %s: %w", r.ID, err)
			}
		case r.Kind.IsPythonMetric():
			r.Python = &rules.PythonCode{}
			if err := json.Unmarshal(code, r.Python); err != nil {
				return nil, fmt.Errorf("decoding python code for rule %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}
	return out, nil
}
