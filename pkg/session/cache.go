// Package session caches per-request sessions such as auth tokens, keyed by
// the request parameters that produced them. Entries expire after a TTL and
// the cache is bounded in size; the least recently used entry is evicted
// first.
package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
)

const (
	DefaultSize = 128
	DefaultTTL  = 30 * time.Minute
)

// Cache maps request parameters to sessions. Concurrent GetOrCreate calls
// for the same parameters share one create call.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// New creates a cache holding at most size entries for ttl each. Zero
// values select the defaults.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Key returns the canonical cache key of params.
func Key(params map[string]any) string {
	return slicing.Slice(params).Key()
}

// Get returns the cached session for params.
func (c *Cache[V]) Get(params map[string]any) (V, bool) {
	return c.lru.Get(Key(params))
}

// GetOrCreate returns the cached session for params or creates it. A failed
// create is not cached. Concurrent callers for the same params share one
// create, which runs without the first caller's cancellation so that a
// caller giving up does not fail the others.
func (c *Cache[V]) GetOrCreate(ctx context.Context, params map[string]any, create func(ctx context.Context) (V, error)) (V, error) {
	key := Key(params)
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := create(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Invalidate drops the session for params, e.g. after the upstream
// rejected it.
func (c *Cache[V]) Invalidate(params map[string]any) {
	c.lru.Remove(Key(params))
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
