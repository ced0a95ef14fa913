/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package cache provides the explicit cache port used by the rule registry:
// get-or-load with a caller-supplied loader, and pattern invalidation.
//
// Two implementations are provided: a Redis-backed cache for production and
// an in-memory cache for tests and single-process deployments. Both
// guarantee a single in-flight load per key, pass loader errors through
// untouched, and never cache a load that failed.
package cache

import (
	"context"
	"time"
)

// Loader produces the value for a key on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Interface is the cache port. Values are opaque byte slices; callers own
// the encoding.
type Interface interface {
	// GetOrLoad returns the cached value for key, invoking loader on a miss
	// and caching its result for ttl. Loader errors are returned untouched
	// and nothing is cached for them. Concurrent callers of the same key
	// share one loader invocation.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error)

	// Invalidate removes every key matching the glob pattern.
	Invalidate(ctx context.Context, pattern string) error
}
