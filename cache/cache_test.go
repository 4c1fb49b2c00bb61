package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "page:a", []byte("body"), time.Minute))

	got, err := m.Get(ctx, "page:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), got)

	_, err = m.Get(ctx, "page:missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss, "expired entries must read as misses")
}

func TestMemoryClearPrefix(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "whitelist:iphone:US", []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "page:x", []byte("b"), time.Minute))

	require.NoError(t, m.Clear(ctx, "whitelist:"))

	_, err := m.Get(ctx, "whitelist:iphone:US")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "page:x")
	assert.NoError(t, err, "other namespaces must survive a prefixed clear")
}

func TestBoltRoundTrip(t *testing.T) {
	b, err := NewBolt(t.TempDir()+"/cache.db", time.Minute)
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "page:a", []byte("body"), time.Minute))

	got, err := b.Get(ctx, "page:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), got)

	require.NoError(t, b.Set(ctx, "page:b", []byte("x"), 5*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err = b.Get(ctx, "page:b")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestTieredBackfill(t *testing.T) {
	fast := NewMemory(time.Minute)
	defer fast.Close()
	durable := NewMemory(time.Minute)
	defer durable.Close()
	tiered := NewTiered(fast, durable, zap.NewNop())
	ctx := context.Background()

	// Seed only the durable tier, as if the fast tier restarted.
	require.NoError(t, durable.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// The durable hit must have been copied into the fast tier.
	got, err = fast.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestTieredSetWritesBothTiers(t *testing.T) {
	fast := NewMemory(time.Minute)
	defer fast.Close()
	durable := NewMemory(time.Minute)
	defer durable.Close()
	tiered := NewTiered(fast, durable, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))

	_, err := fast.Get(ctx, "k")
	assert.NoError(t, err)
	_, err = durable.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestTieredStats(t *testing.T) {
	fast := NewMemory(time.Minute)
	defer fast.Close()
	tiered := NewTiered(fast, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, "k", []byte("v"), time.Minute))
	_, _ = tiered.Get(ctx, "k")
	_, _ = tiered.Get(ctx, "missing")

	stats := tiered.Stats(ctx)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.FastEntries)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "whitelist:iphone 15:US", Key(NamespaceWhitelist, "iphone 15", "US"))
	assert.Equal(t, "page:https://a.com/p", Key(NamespacePage, "https://a.com/p"))
}
