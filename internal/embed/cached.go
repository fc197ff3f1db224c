package embed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/askdocs/askdocs/internal/chunk"
)

// DefaultCacheEntries bounds the embedding cache when not configured.
const DefaultCacheEntries = 4096

// CachedEmbedder wraps an Embedder with a TTL'd LRU cache keyed by
// normalized content hash. Concurrent requests for the same text share a
// single upstream call. Failures are never cached.
type CachedEmbedder struct {
	inner   Embedder
	cache   *expirable.LRU[string, []float32]
	flight  singleflight.Group
	enabled bool

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of at most maxEntries vectors
// expiring after ttl. A nil cache (enabled=false) passes every call through.
func NewCachedEmbedder(inner Embedder, enabled bool, maxEntries int, ttl time.Duration) *CachedEmbedder {
	c := &CachedEmbedder{inner: inner, enabled: enabled}
	if enabled {
		if maxEntries <= 0 {
			maxEntries = DefaultCacheEntries
		}
		c.cache = expirable.NewLRU[string, []float32](maxEntries, nil, ttl)
	}
	return c
}

// Embed returns the cached vector for text when present, otherwise computes
// it through the wrapped embedder. At most one upstream call per content
// hash is in flight at a time; duplicate callers wait and share its result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.enabled {
		return c.inner.Embed(ctx, text)
	}

	key := chunk.HashText(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	return c.embedFlight(ctx, key, text)
}

// embedFlight computes text's vector through the flight group. Every caller
// for the same content hash, single or batch, shares one upstream call.
func (c *CachedEmbedder) embedFlight(ctx context.Context, key, text string) ([]float32, error) {
	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A sibling caller may have populated the cache while this one
		// waited on the flight group.
		if vec, ok := c.cache.Get(key); ok {
			c.hits.Add(1)
			return vec, nil
		}
		c.misses.Add(1)
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// embedBatchConcurrency bounds parallel upstream calls from one batch.
const embedBatchConcurrency = 8

// EmbedBatch resolves each text from the cache and embeds the misses through
// the flight group, preserving input order. Identical texts within the batch
// collapse to one flight per content hash.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.enabled {
		return c.inner.EmbedBatch(ctx, texts)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missText := make(map[string]string)
	var missKeys []string

	for i, text := range texts {
		keys[i] = chunk.HashText(text)
		if vec, ok := c.cache.Get(keys[i]); ok {
			c.hits.Add(1)
			vecs[i] = vec
			continue
		}
		if _, seen := missText[keys[i]]; !seen {
			missText[keys[i]] = text
			missKeys = append(missKeys, keys[i])
		}
	}

	if len(missKeys) > 0 {
		fresh := make([][]float32, len(missKeys))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(embedBatchConcurrency)
		for j, key := range missKeys {
			g.Go(func() error {
				vec, err := c.embedFlight(gctx, key, missText[key])
				if err != nil {
					return err
				}
				fresh[j] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		byKey := make(map[string][]float32, len(missKeys))
		for j, key := range missKeys {
			byKey[key] = fresh[j]
		}
		for i := range texts {
			if vecs[i] == nil {
				vecs[i] = byKey[keys[i]]
			}
		}
	}

	slog.Debug("embedding_batch_resolved",
		"total", len(texts),
		"cache_misses", len(missKeys))
	return vecs, nil
}

// Stats reports cumulative cache hits and misses.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the wrapped embedder's model identifier.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	if c.cache != nil {
		c.cache.Purge()
	}
	return c.inner.Close()
}
