package content

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"kycvault/internal/content/metrics"
)

const (
	defaultCacheSize          = 256
	defaultCacheMaxBytes      = 64 << 20
	defaultCacheMaxEntryBytes = 2 << 20

	// fillTimeout bounds a shared fill once it no longer follows any caller.
	fillTimeout = time.Minute
)

// Cached keeps recently retrieved content in memory. Content is immutable by
// id so entries never need invalidation. Concurrent misses for the same id
// share one upstream call.
//
// The cache is bounded by entry count and by total bytes held. Items larger
// than the per-entry limit are passed through without being cached.
type Cached struct {
	next          Store
	cache         *lru.Cache[ID, []byte]
	group         singleflight.Group
	metrics       *metrics.Metrics
	bytes         atomic.Int64
	maxBytes      int64
	maxEntryBytes int64
}

type CacheOption func(*Cached)

// WithCacheMaxBytes caps the total bytes held across all entries.
func WithCacheMaxBytes(n int64) CacheOption {
	return func(c *Cached) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithCacheMaxEntryBytes sets the largest item that will be cached.
func WithCacheMaxEntryBytes(n int64) CacheOption {
	return func(c *Cached) {
		if n > 0 {
			c.maxEntryBytes = n
		}
	}
}

// NewCached wraps next with an LRU of size entries. A non-positive size uses
// the default.
func NewCached(next Store, size int, m *metrics.Metrics, opts ...CacheOption) (*Cached, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c := &Cached{
		next:          next,
		metrics:       m,
		maxBytes:      defaultCacheMaxBytes,
		maxEntryBytes: defaultCacheMaxEntryBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntryBytes > c.maxBytes {
		c.maxEntryBytes = c.maxBytes
	}
	cache, err := lru.NewWithEvict[ID, []byte](size, func(_ ID, data []byte) {
		c.bytes.Add(-int64(len(data)))
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Store passes through and primes the cache with the stored bytes.
func (c *Cached) Store(ctx context.Context, data []byte, meta Metadata) (ID, error) {
	id, err := c.next.Store(ctx, data, meta)
	if err != nil {
		return "", err
	}
	c.add(id, data)
	return id, nil
}

// Retrieve serves from memory or joins a shared fill. The fill is detached
// from the caller that started it; each caller stops waiting when its own
// context ends.
func (c *Cached) Retrieve(ctx context.Context, id ID) ([]byte, error) {
	if data, ok := c.cache.Get(id); ok {
		if c.metrics != nil {
			c.metrics.IncrementCacheHit()
		}
		return clone(data), nil
	}
	if c.metrics != nil {
		c.metrics.IncrementCacheMiss()
	}

	fill := c.group.DoChan(string(id), func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		data, err := c.next.Retrieve(fillCtx, id)
		if err != nil {
			return nil, err
		}
		c.add(id, data)
		return data, nil
	})

	select {
	case res := <-fill:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bytes reports the total size of cached entries.
func (c *Cached) Bytes() int64 {
	return c.bytes.Load()
}

func (c *Cached) Len() int {
	return c.cache.Len()
}

func (c *Cached) add(id ID, data []byte) {
	size := int64(len(data))
	if size > c.maxEntryBytes {
		return
	}
	if ok, _ := c.cache.ContainsOrAdd(id, clone(data)); ok {
		return
	}
	c.bytes.Add(size)
	for c.bytes.Load() > c.maxBytes {
		if _, _, ok := c.cache.RemoveOldest(); !ok {
			return
		}
	}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
