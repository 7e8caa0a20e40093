package perm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
	"github.com/vyrodovalexey/avguard/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.New(&config.CacheConfig{Type: config.StoreTypeMemory}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func TestNewMembership(t *testing.T) {
	t.Parallel()

	t.Run("nil resolver", func(t *testing.T) {
		t.Parallel()

		_, err := NewMembership(nil, newTestStore(t), 0)
		require.ErrorIs(t, err, ErrNoResolver)
	})

	t.Run("negative TTL falls back to never expire", func(t *testing.T) {
		t.Parallel()

		m, err := NewMembership(staticResolver(nil), newTestStore(t), -time.Second,
			WithMembershipMetrics(newTestMetrics(t)))
		require.NoError(t, err)
		assert.Equal(t, time.Duration(0), m.TTL())
	})
}

func TestMembershipCacheRoundTrip(t *testing.T) {
	t.Parallel()

	resolver := &countingResolver{delegate: staticResolver(map[string][]string{
		"alice": {"g1"},
	})}
	m, err := NewMembership(resolver.resolve, newTestStore(t), time.Hour,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	ctx := context.Background()

	member, cached, err := m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, member)
	assert.False(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())

	// The second lookup must be answered from the store.
	member, cached, err = m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, member)
	assert.True(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestMembershipCachesNegativeResults(t *testing.T) {
	t.Parallel()

	resolver := &countingResolver{delegate: staticResolver(map[string][]string{
		"alice": {"g1"},
	})}
	m, err := NewMembership(resolver.resolve, newTestStore(t), time.Hour,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	ctx := context.Background()

	member, _, err := m.Lookup(ctx, "alice", "g2")
	require.NoError(t, err)
	assert.False(t, member)

	member, cached, err := m.Lookup(ctx, "alice", "g2")
	require.NoError(t, err)
	assert.False(t, member)
	assert.True(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestMembershipExpiry(t *testing.T) {
	t.Parallel()

	groups := map[string][]string{"alice": {"g1"}}
	resolver := &countingResolver{delegate: func(_ context.Context, user string) ([]string, error) {
		return groups[user], nil
	}}
	m, err := NewMembership(resolver.resolve, newTestStore(t), 20*time.Millisecond,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	ctx := context.Background()

	member, _, err := m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, member)

	// The underlying data changes while the entry is still cached; the
	// stale answer keeps being served until the TTL elapses.
	groups["alice"] = []string{"g2"}

	member, cached, err := m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, member)
	assert.True(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())

	time.Sleep(50 * time.Millisecond)

	member, cached, err = m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.False(t, member)
	assert.False(t, cached)
	assert.Equal(t, int64(2), resolver.calls.Load())
}

func TestMembershipZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	resolver := &countingResolver{delegate: staticResolver(map[string][]string{
		"alice": {"g1"},
	})}
	m, err := NewMembership(resolver.resolve, newTestStore(t), 0,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	ctx := context.Background()

	_, _, err = m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, cached, err := m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

// failingStore returns a fixed error from every operation.
type failingStore struct {
	err error
}

func (s *failingStore) Get(_ context.Context, _ string) ([]byte, error) { return nil, s.err }
func (s *failingStore) Set(_ context.Context, _ string, _ []byte) error { return s.err }
func (s *failingStore) Expire(_ context.Context, _ string, _ time.Duration) error {
	return s.err
}
func (s *failingStore) Close() error { return nil }

func TestMembershipStoreFailurePropagates(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection refused")
	resolver := &countingResolver{delegate: staticResolver(nil)}
	m, err := NewMembership(resolver.resolve, &failingStore{err: storeErr}, time.Hour,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	_, _, err = m.Lookup(context.Background(), "alice", "g1")
	require.ErrorIs(t, err, storeErr)

	// A failing read must not be treated as a miss: the resolver is
	// never consulted.
	assert.Equal(t, int64(0), resolver.calls.Load())
}

func TestMembershipCorruptEntryReresolved(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	resolver := &countingResolver{delegate: staticResolver(map[string][]string{
		"alice": {"g1"},
	})}
	m, err := NewMembership(resolver.resolve, st, 0,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Set(ctx, membershipKey("alice", "g1"), []byte("not-a-bool")))

	member, cached, err := m.Lookup(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, member)
	assert.False(t, cached)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestMembershipKey(t *testing.T) {
	t.Parallel()

	// Stable across calls.
	assert.Equal(t, membershipKey("alice", "g1"), membershipKey("alice", "g1"))

	// Injective over tricky pairs.
	assert.NotEqual(t, membershipKey("alice", "g1"), membershipKey("alice:g1", ""))
	assert.NotEqual(t, membershipKey("a", "bc"), membershipKey("ab", "c"))
	assert.NotEqual(t, membershipKey(`a"`, "b"), membershipKey("a", `"b`))
}

func TestEngineWithMembership(t *testing.T) {
	t.Parallel()

	resolver := &countingResolver{delegate: staticResolver(map[string][]string{
		"carol": {"eng"},
	})}
	m, err := NewMembership(resolver.resolve, newTestStore(t), time.Hour,
		WithMembershipMetrics(newTestMetrics(t)))
	require.NoError(t, err)

	engine := NewEngine(
		WithMetrics(newTestMetrics(t)),
		WithMembership(m),
	)
	ctx := context.Background()
	spec := Spec{Mode: 10, Group: "eng"}

	first, err := engine.Evaluate(ctx, spec, "carol")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.False(t, first.Cached)

	second, err := engine.Evaluate(ctx, spec, "carol")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.True(t, second.Cached)
	assert.Equal(t, int64(1), resolver.calls.Load())
}
