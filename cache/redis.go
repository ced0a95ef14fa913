/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis is a cache backed by a shared Redis instance. Loads are deduplicated
// per key within one process; across processes the last write wins, which is
// acceptable because values are pure functions of the management-layer state
// and invalidation clears all replicas at once.
type Redis struct {
	client redis.UniversalClient
	group  singleflight.Group
}

// NewRedis wraps an existing Redis client as a cache.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// GetOrLoad implements Interface.
func (r *Redis) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}

	out, err, _ := r.group.Do(key, func() (any, error) {
		// Another flight may have populated the key while we queued.
		if val, err := r.client.Get(ctx, key).Bytes(); err == nil {
			return val, nil
		}

		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if val == nil {
			// Nothing to cache; hand the empty result back uncached so a
			// later read retries the loader.
			return []byte(nil), nil
		}
		if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
			return nil, fmt.Errorf("cache set %q: %w", key, err)
		}
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Invalidate implements Interface. Patterns use Redis glob syntax.
func (r *Redis) Invalidate(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %q: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache del %q: %w", pattern, err)
	}
	return nil
}
