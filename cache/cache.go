package cache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrMiss is returned when a key is absent or its entry has expired.
// Expired entries are indistinguishable from absent ones to callers.
var ErrMiss = errors.New("cache: miss")

// Namespace prefixes. Whitelists live for hours, pages for minutes.
const (
	NamespaceWhitelist = "whitelist"
	NamespacePage      = "page"
)

// Key builds a namespaced cache key.
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// Store is a single cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context, prefix string) error
	Len(ctx context.Context) (int, error)
}

// Stats reports cache usage counters.
type Stats struct {
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Sets           int64 `json:"sets"`
	FastEntries    int   `json:"fast_entries"`
	DurableEntries int   `json:"durable_entries"`
}

// Tiered is a two-tier cache: a fast tier consulted first and a durable
// tier behind it. Callers never observe which tier served a request; a
// tier failure degrades to the other tier, not to an error.
type Tiered struct {
	fast    Store
	durable Store
	logger  *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewTiered creates a two-tier cache. Either tier may be nil.
func NewTiered(fast, durable Store, logger *zap.Logger) *Tiered {
	return &Tiered{
		fast:    fast,
		durable: durable,
		logger:  logger,
	}
}

// Get returns the cached value for key or ErrMiss. A durable-tier hit is
// copied back into the fast tier with a short TTL so repeated reads stay
// cheap.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if t.fast != nil {
		value, err := t.fast.Get(ctx, key)
		if err == nil {
			t.hits.Add(1)
			return value, nil
		}
		if !errors.Is(err, ErrMiss) {
			t.logger.Warn("fast cache tier read failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	if t.durable != nil {
		value, err := t.durable.Get(ctx, key)
		if err == nil {
			t.hits.Add(1)
			if t.fast != nil {
				if err := t.fast.Set(ctx, key, value, time.Minute); err != nil {
					t.logger.Debug("fast tier backfill failed", zap.String("key", key), zap.Error(err))
				}
			}
			return value, nil
		}
		if !errors.Is(err, ErrMiss) {
			t.logger.Warn("durable cache tier read failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	t.misses.Add(1)
	return nil, ErrMiss
}

// Set writes the value to both tiers. It fails only if every available
// tier rejects the write.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.sets.Add(1)
	t.logger.Debug("cache_set",
		zap.String("key", key),
		zap.Duration("ttl", ttl),
		zap.Int("bytes", len(value)))

	var firstErr error
	wrote := false
	for _, store := range []Store{t.fast, t.durable} {
		if store == nil {
			continue
		}
		if err := store.Set(ctx, key, value, ttl); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.logger.Warn("cache tier write failed", zap.String("key", key), zap.Error(err))
			continue
		}
		wrote = true
	}
	if !wrote {
		return firstErr
	}
	return nil
}

// Delete removes the key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, store := range []Store{t.fast, t.durable} {
		if store == nil {
			continue
		}
		if err := store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear removes every entry whose key starts with prefix. An empty prefix
// clears everything.
func (t *Tiered) Clear(ctx context.Context, prefix string) error {
	t.logger.Info("cache_clear", zap.String("prefix", prefix))

	var firstErr error
	for _, store := range []Store{t.fast, t.durable} {
		if store == nil {
			continue
		}
		if err := store.Clear(ctx, prefix); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns usage counters and per-tier entry counts.
func (t *Tiered) Stats(ctx context.Context) Stats {
	s := Stats{
		Hits:   t.hits.Load(),
		Misses: t.misses.Load(),
		Sets:   t.sets.Load(),
	}
	if t.fast != nil {
		if n, err := t.fast.Len(ctx); err == nil {
			s.FastEntries = n
		}
	}
	if t.durable != nil {
		if n, err := t.durable.Len(ctx); err == nil {
			s.DurableEntries = n
		}
	}
	return s
}
