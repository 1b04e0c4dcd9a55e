package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teemulinna/council/internal/modelclient"
)

func TestKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	msgs := []modelclient.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "what is 2+2?"},
	}

	k1 := Key("claude-haiku-4-5", msgs)
	k2 := Key("claude-haiku-4-5", msgs)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 64) // hex-encoded sha256
}

func TestKeyDiffersOnModelOrMessages(t *testing.T) {
	t.Parallel()

	msgs := []modelclient.Message{{Role: "user", Content: "hello"}}
	base := Key("claude-haiku-4-5", msgs)

	require.NotEqual(t, base, Key("claude-sonnet-4-5", msgs))
	require.NotEqual(t, base, Key("claude-haiku-4-5", []modelclient.Message{{Role: "user", Content: "goodbye"}}))
}

func TestMemoryCacheMissThenHit(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()
	msgs := []modelclient.Message{{Role: "user", Content: "hi"}}

	_, ok, err := c.Get(ctx, "claude-haiku-4-5", msgs)
	require.NoError(t, err)
	require.False(t, ok)

	resp := modelclient.Response{Content: "hello there"}
	require.NoError(t, c.Set(ctx, "claude-haiku-4-5", msgs, resp, time.Minute))

	got, ok, err := c.Get(ctx, "claude-haiku-4-5", msgs)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, resp, got)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	msgs := []modelclient.Message{{Role: "user", Content: "hi"}}

	now := time.Now()
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	require.NoError(t, c.Set(ctx, "claude-haiku-4-5", msgs, modelclient.Response{Content: "x"}, time.Second))

	timeNow = func() time.Time { return now.Add(2 * time.Second) }

	_, ok, err := c.Get(ctx, "claude-haiku-4-5", msgs)
	require.NoError(t, err)
	require.False(t, ok, "entry should have expired")
}

func TestMemoryCacheNoExpiryWhenTTLZero(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	msgs := []modelclient.Message{{Role: "user", Content: "hi"}}

	require.NoError(t, c.Set(ctx, "claude-haiku-4-5", msgs, modelclient.Response{Content: "x"}, 0))

	now := time.Now()
	timeNow = func() time.Time { return now.Add(365 * 24 * time.Hour) }
	defer func() { timeNow = time.Now }()

	_, ok, err := c.Get(ctx, "claude-haiku-4-5", msgs)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCacheSweepExpired(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	now := time.Now()
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	require.NoError(t, c.Set(ctx, "m1", []modelclient.Message{{Role: "user", Content: "a"}}, modelclient.Response{}, time.Second))
	require.NoError(t, c.Set(ctx, "m2", []modelclient.Message{{Role: "user", Content: "b"}}, modelclient.Response{}, time.Hour))

	timeNow = func() time.Time { return now.Add(2 * time.Second) }

	removed := c.SweepExpired()
	require.Equal(t, 1, removed)
}
