package perm

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avguard/internal/observability"
	"github.com/vyrodovalexey/avguard/internal/store"
)

// membershipKeyPrefix namespaces membership entries in the shared store.
const membershipKeyPrefix = "membership:"

// Membership memoizes group-membership lookups in a shared key-value
// store. Within the configured TTL window repeated lookups for the same
// (user, group) pair return the stored answer without consulting the
// resolver; staleness is the explicit trade-off for avoiding repeated
// expensive resolver calls.
//
// Concurrent first lookups for the same pair may each call the resolver
// and write the same key. The writes are idempotent, so no locking is
// needed.
type Membership struct {
	resolver GroupResolver
	store    store.Store
	ttl      time.Duration
	logger   observability.Logger
	metrics  *Metrics
}

// MembershipOption is a functional option for the membership cache.
type MembershipOption func(*Membership)

// WithMembershipLogger sets the logger.
func WithMembershipLogger(logger observability.Logger) MembershipOption {
	return func(m *Membership) {
		m.logger = logger
	}
}

// WithMembershipMetrics sets the metrics.
func WithMembershipMetrics(metrics *Metrics) MembershipOption {
	return func(m *Membership) {
		m.metrics = metrics
	}
}

// NewMembership creates a membership cache around a resolver. A TTL of
// zero means entries never expire. A negative TTL is a configuration
// error; it is logged and treated as zero rather than being passed to
// the store.
func NewMembership(
	resolver GroupResolver, st store.Store, ttl time.Duration, opts ...MembershipOption,
) (*Membership, error) {
	if resolver == nil {
		return nil, ErrNoResolver
	}

	m := &Membership{
		resolver: resolver,
		store:    st,
		ttl:      ttl,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.metrics == nil {
		m.metrics = NewMetrics("avguard")
	}

	if m.ttl < 0 {
		m.logger.Error("negative membership TTL is not valid, entries will never expire",
			observability.Duration("ttl", m.ttl))
		m.ttl = 0
	}

	return m, nil
}

// TTL returns the configured entry time-to-live.
func (m *Membership) TTL() time.Duration {
	return m.ttl
}

// Lookup answers whether user is a member of group, serving from the
// store when possible. The second return value reports whether the
// answer came from the cache. Store failures are returned to the
// caller; they are never treated as a miss.
func (m *Membership) Lookup(ctx context.Context, user, group string) (member, cached bool, err error) {
	key := membershipKey(user, group)

	value, err := m.store.Get(ctx, key)
	if err == nil {
		m.metrics.RecordCacheHit()
		member, parseErr := strconv.ParseBool(string(value))
		if parseErr != nil {
			// A foreign writer corrupted the entry. Fall through to a
			// fresh resolve, which overwrites it.
			m.logger.Warn("discarding unparseable membership entry",
				observability.String("key", key),
				observability.Error(parseErr))
			return m.resolve(ctx, user, group, key)
		}
		return member, true, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return false, false, err
	}

	m.metrics.RecordCacheMiss()
	return m.resolve(ctx, user, group, key)
}

// UserInGroup implements the plain membership question without hit
// information.
func (m *Membership) UserInGroup(ctx context.Context, user, group string) (bool, error) {
	member, _, err := m.Lookup(ctx, user, group)
	return member, err
}

// resolve consults the resolver and stores the result.
func (m *Membership) resolve(ctx context.Context, user, group, key string) (bool, bool, error) {
	groups, err := m.resolver(ctx, user)
	if err != nil {
		return false, false, err
	}

	member := slices.Contains(groups, group)

	if err := m.store.Set(ctx, key, []byte(strconv.FormatBool(member))); err != nil {
		return false, false, err
	}

	if m.ttl > 0 {
		if err := m.store.Expire(ctx, key, m.ttl); err != nil {
			return false, false, err
		}
	}

	m.logger.Debug("membership cached",
		observability.String("user", user),
		observability.String("group", group),
		observability.Bool("member", member),
		observability.Duration("ttl", m.ttl))

	return member, false, nil
}

// membershipKey builds the store key for a (user, group) pair. JSON
// encoding keeps the key injective for arbitrary user and group names;
// the format must stay stable across processes sharing the store.
func membershipKey(user, group string) string {
	pair, _ := json.Marshal(struct {
		User  string `json:"user"`
		Group string `json:"group"`
	}{User: user, Group: group})
	return membershipKeyPrefix + string(pair)
}
