/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package registry resolves the enabled automation rules for a (project,
// kind) pair through the cache port. Rule mutation and cache invalidation
// on mutation belong to the management layer; this adapter only reads.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/tracelens/onlineval/cache"
	"github.com/tracelens/onlineval/rules"
)

const defaultTTL = 30 * time.Second

// Store is the source of truth the registry loads from on a cache miss.
type Store interface {
	// ListEnabled returns the enabled rules of the given kind for a project.
	ListEnabled(ctx context.Context, projectID uuid.UUID, kind rules.Kind) ([]rules.Rule, error)
}

// Registry is the cached rule lookup used by the scoring engine.
type Registry struct {
	cache cache.Interface
	store Store
	ttl   time.Duration
}

// New creates a registry over the given cache port and rule store.
func New(c cache.Interface, store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{cache: c, store: store, ttl: ttl}
}

// Key is the cache key for a (project, kind) pair. The management layer
// computes the same keys when invalidating after a rule mutation.
func Key(projectID uuid.UUID, kind rules.Kind) string {
	return fmt.Sprintf("rules:%s:%s", projectID, kind)
}

// ProjectPattern matches every cached kind of one project.
func ProjectPattern(projectID uuid.UUID) string {
	return fmt.Sprintf("rules:%s:*", projectID)
}

// FindEnabled returns the enabled rules for (projectID, kind). Results are
// decoded fresh per call so concurrent readers never share mutable state.
// Rules that fail validation are dropped with a warning rather than
// poisoning the whole project.
func (r *Registry) FindEnabled(ctx context.Context, projectID uuid.UUID, kind rules.Kind) ([]rules.Rule, error) {
	key := Key(projectID, kind)

	raw, err := r.cache.GetOrLoad(ctx, key, r.ttl, func(ctx context.Context) ([]byte, error) {
		found, err := r.store.ListEnabled(ctx, projectID, kind)
		if err != nil {
			return nil, fmt.Errorf("listing rules for %s: %w", key, err)
		}

		valid := make([]rules.Rule, 0, len(found))
		for _, rule := range found {
			rule.Normalize()
			if err := rule.Validate(); err != nil {
				clog.FromContext(ctx).With("rule_id", rule.ID).
					With("error", err).
					Warn("Dropping invalid rule from registry")
				continue
			}
			valid = append(valid, rule)
		}
		return json.Marshal(valid)
	})
	if err != nil {
		return nil, err
	}

	var out []rules.Rule
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding cached rules for %s: %w", key, err)
	}
	return out, nil
}

// Invalidate drops every cached kind of one project.
func (r *Registry) Invalidate(ctx context.Context, projectID uuid.UUID) error {
	return r.cache.Invalidate(ctx, ProjectPattern(projectID))
}
