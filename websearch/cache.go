package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/ragflow/rag"
)

// DefaultCacheTTL is how long cached results stay fresh.
const DefaultCacheTTL = 15 * time.Minute

// DefaultSearchTimeout bounds a provider call made on behalf of coalesced
// callers.
const DefaultSearchTimeout = 30 * time.Second

// Cached serves repeated queries for a provider from redis. Concurrent misses
// for the same query share one provider call. Redis failures are logged and
// fall through to the provider; empty results are not cached.
type Cached struct {
	next    rag.WebSearcher
	rdb     redis.Cmdable
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

// CacheOption configures a Cached provider.
type CacheOption func(*Cached)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSearchTimeout bounds the shared provider call.
func WithSearchTimeout(d time.Duration) CacheOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *Cached) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCached wraps next. A nil rdb disables caching but keeps the
// coalescing of concurrent identical queries.
func NewCached(next rag.WebSearcher, rdb redis.Cmdable, opts ...CacheOption) *Cached {
	c := &Cached{next: next, rdb: rdb, ttl: DefaultCacheTTL, timeout: DefaultSearchTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "websearch_cache"), zap.String("provider", next.Name()))
	return c
}

// Name implements rag.WebSearcher.
func (c *Cached) Name() string { return c.next.Name() }

// Search implements rag.WebSearcher.
func (c *Cached) Search(ctx context.Context, query string, max int) ([]rag.WebResult, error) {
	key := c.key(query, max)

	if results, ok := c.load(ctx, key); ok {
		return results, nil
	}

	// The shared call outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		results, err := c.next.Search(sctx, query, max)
		if err != nil {
			return nil, err
		}
		c.store(sctx, key, results)
		return results, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	results := res.Val.([]rag.WebResult)
	if res.Shared {
		c.logger.Debug("coalesced concurrent search", zap.String("key", key))
		results = append([]rag.WebResult(nil), results...)
	}
	return results, nil
}

func (c *Cached) key(query string, max int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "websearch:" + c.next.Name() + ":" + strconv.Itoa(max) + ":" + hex.EncodeToString(sum[:16])
}

func (c *Cached) load(ctx context.Context, key string) ([]rag.WebResult, bool) {
	if c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return nil, false
	}
	var results []rag.WebResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return results, true
}

func (c *Cached) store(ctx context.Context, key string, results []rag.WebResult) {
	if c.rdb == nil || len(results) == 0 {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}
