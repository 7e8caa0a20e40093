package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
)

func newTestMemoryStore(t *testing.T) *memoryStore {
	t.Helper()

	s := newMemoryStore(observability.NopLogger())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStoreGetSet(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "key", []byte("value")))

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "key", []byte("first")))
	require.NoError(t, s.Set(ctx, "key", []byte("second")))

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)
}

func TestMemoryStoreExpire(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		err := s.Expire(ctx, "missing", time.Minute)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("entry expires", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "short", []byte("v")))
		require.NoError(t, s.Expire(ctx, "short", 20*time.Millisecond))

		value, err := s.Get(ctx, "short")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)

		time.Sleep(50 * time.Millisecond)

		_, err = s.Get(ctx, "short")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("non-positive TTL removes expiry", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "forever", []byte("v")))
		require.NoError(t, s.Expire(ctx, "forever", 20*time.Millisecond))
		require.NoError(t, s.Expire(ctx, "forever", 0))

		time.Sleep(50 * time.Millisecond)

		value, err := s.Get(ctx, "forever")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)
	})
}

func TestMemoryStoreValueIsolation(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	original := []byte("value")
	require.NoError(t, s.Set(ctx, "key", original))

	// Mutating the caller's slice must not affect the stored value.
	original[0] = 'X'

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	// Mutating the returned slice must not affect subsequent reads.
	value[0] = 'Y'

	again, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestMemoryStoreRemoveExpired(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	require.NoError(t, s.Expire(ctx, "a", time.Millisecond))

	time.Sleep(10 * time.Millisecond)
	s.removeExpired()

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.items, 1)
	assert.Contains(t, s.items, "b")
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := newTestMemoryStore(t)
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = s.Set(ctx, "shared", []byte("value"))
				_, _ = s.Get(ctx, "shared")
				_ = s.Expire(ctx, "shared", time.Minute)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	value, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	t.Parallel()

	s := newMemoryStore(observability.NopLogger())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil, observability.NopLogger())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		s, err := New(&config.CacheConfig{Type: config.StoreTypeMemory}, nil)
		require.NoError(t, err)
		require.NotNil(t, s)
		_ = s.Close()
	})

	t.Run("empty type defaults to memory", func(t *testing.T) {
		t.Parallel()

		s, err := New(&config.CacheConfig{}, observability.NopLogger())
		require.NoError(t, err)
		require.NotNil(t, s)
		_ = s.Close()
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		_, err := New(&config.CacheConfig{Type: "memcached"}, observability.NopLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown store type")
	})
}
