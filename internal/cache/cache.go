// Package cache memoises the deterministic part of an answer. Entries are
// keyed by the corpus fingerprint and the normalised question, so a changed
// corpus never serves stale answers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/logger"
	"github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/metrics"
)

const keyPrefix = "navigator:"

// Cache is a typed, JSON-encoded view over a Backend. Backend errors are
// logged and treated as misses.
type Cache[V any] struct {
	backend     Backend
	fingerprint string
	group       singleflight.Group
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

func New[V any](backend Backend, fingerprint string, m *metrics.Metrics) *Cache[V] {
	return &Cache[V]{
		backend:     backend,
		fingerprint: fingerprint,
		metrics:     m,
		logger:      logger.WithComponent("response-cache").With("backend", backend.Name()),
	}
}

func (c *Cache[V]) Get(ctx context.Context, question string) (V, bool) {
	var zero V
	key := c.Key(question)
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		c.miss()
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.miss()
		return zero, false
	}
	c.hits.Add(1)
	c.metrics.Cache(c.backend.Name(), "hit")
	return v, true
}

func (c *Cache[V]) Set(ctx context.Context, question string, v V) {
	key := c.Key(question)
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for question or computes, stores and
// returns it. Concurrent misses for the same key share one computation. The
// bool reports a cache hit.
func (c *Cache[V]) GetOrCompute(ctx context.Context, question string, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(ctx, question); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(c.Key(question), func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, question, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return val.(V), false, nil
}

// Invalidate drops every entry the backend holds.
func (c *Cache[V]) Invalidate(ctx context.Context) error {
	if err := c.backend.Purge(ctx); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated")
	return nil
}

func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key is the backend key for question under the current corpus.
func (c *Cache[V]) Key(question string) string {
	sum := sha256.Sum256([]byte(c.fingerprint + "\x00" + Normalize(question)))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

// Normalize folds case and whitespace. Questions that normalise alike get
// identical answers from the deterministic stages.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func (c *Cache[V]) miss() {
	c.misses.Add(1)
	c.metrics.Cache(c.backend.Name(), "miss")
}
