/*
Copyright 2026 Tracelens, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	val     []byte
	expires time.Time
}

// InMemory is a process-local cache with TTL expiry. It is used by tests and
// single-process deployments; semantics match the Redis implementation.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

// NewInMemory returns an empty in-memory cache.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *InMemory) lookup(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.val, true
}

// GetOrLoad implements Interface.
func (c *InMemory) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	if val, ok := c.lookup(key); ok {
		return val, nil
	}

	out, err, _ := c.group.Do(key, func() (any, error) {
		if val, ok := c.lookup(key); ok {
			return val, nil
		}
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if val == nil {
			return []byte(nil), nil
		}
		c.mu.Lock()
		c.entries[key] = entry{val: val, expires: c.now().Add(ttl)}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Invalidate implements Interface. Patterns use path.Match glob syntax,
// which covers the "prefix:*" shapes the registry uses.
func (c *InMemory) Invalidate(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err != nil {
			return err
		} else if ok {
			delete(c.entries, key)
		}
	}
	return nil
}
