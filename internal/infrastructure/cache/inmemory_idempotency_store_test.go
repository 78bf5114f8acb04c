package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(WithClock(clock.Now))
	defer store.Close()
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		ok, err := store.MarkProcessed(ctx, "stripe:evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkProcessed(ctx, "stripe:evt_1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired key can be marked again", func(t *testing.T) {
		ok, err := store.MarkProcessed(ctx, "stripe:evt_2", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(2 * time.Minute)

		processed, err := store.IsProcessed(ctx, "stripe:evt_2")
		require.NoError(t, err)
		assert.False(t, processed)

		ok, err = store.MarkProcessed(ctx, "stripe:evt_2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "", time.Minute)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "k"))

	processed, err := store.IsProcessed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.NoError(t, store.Forget(ctx, "missing"))
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(WithClock(clock.Now))
	defer store.Close()
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	require.Equal(t, 2, store.Len())

	clock.Advance(5 * time.Minute)
	store.sweep()

	assert.Equal(t, 1, store.Len())
	processed, _ := store.IsProcessed(ctx, "long")
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessed(ctx, "stripe:evt_race", time.Hour)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestStoreFactory_RedisDisabledUsesMemory(t *testing.T) {
	f := NewStoreFactory(config.RedisConfig{Host: "localhost", Port: 6379}, config.LedgerConfig{RedisFastPathEnabled: false})

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	_, isMemory := store.(*InMemoryIdempotencyStore)
	assert.True(t, isMemory)
}

func TestStoreFactory_UnreachableRedis(t *testing.T) {
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}
	ledger := config.LedgerConfig{RedisFastPathEnabled: true}

	t.Run("falls back to memory", func(t *testing.T) {
		store, err := NewStoreFactory(unreachable, ledger).CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		_, isMemory := store.(*InMemoryIdempotencyStore)
		assert.True(t, isMemory)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		_, err := NewStoreFactory(unreachable, ledger, WithInMemoryFallback(false)).CreateStore(context.Background())
		assert.Error(t, err)
	})
}
