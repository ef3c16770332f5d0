// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	src := []byte("value")
	c.Set(ctx, "k", src, time.Minute)
	src[0] = 'X' // callers may reuse their buffer

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "value", string(got))

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.Equal(t, 0, st.CurrentSize)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	assert.Equal(t, 1, c.deleteExpired())
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestMemoryCacheJanitorStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewMemoryCache(5 * time.Millisecond)
	c.Set(context.Background(), "k", []byte("v"), time.Millisecond)
	require.Eventually(t, func() bool { return c.Stats().CurrentSize == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(ctx, "shared", []byte{byte(j)}, time.Millisecond)
				c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()
}

func TestNoOp(t *testing.T) {
	var c Cache = NoOp{}
	c.Set(context.Background(), "k", []byte("v"), time.Minute)
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}
