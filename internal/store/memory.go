package store

import (
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/avguard/internal/observability"
)

// cleanupInterval is how often the memory store sweeps expired entries.
const cleanupInterval = time.Minute

// memoryStore implements an in-memory key-value store with per-key expiry.
type memoryStore struct {
	logger observability.Logger

	mu    sync.RWMutex
	items map[string]*memoryEntry

	// stopCh signals the cleanup goroutine to stop.
	stopCh   chan struct{}
	stopOnce sync.Once
}

// memoryEntry represents an entry in the memory store.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// expired returns true if the entry has an expiry in the past.
func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// newMemoryStore creates a new in-memory store.
func newMemoryStore(logger observability.Logger) *memoryStore {
	s := &memoryStore{
		logger: logger,
		items:  make(map[string]*memoryEntry),
		stopCh: make(chan struct{}),
	}

	go s.cleanupLoop()

	logger.Info("memory store initialized")

	return s
}

// Get retrieves a value from the store.
func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"memory", "get",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.RLock()
	entry, exists := s.items[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	if entry.expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry in the meantime.
		if current, ok := s.items[key]; ok && current.expired(time.Now()) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)

	return value, nil
}

// Set stores a value under the given key without expiry.
func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"memory", "set",
		).Observe(time.Since(start).Seconds())
	}()

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.items[key] = &memoryEntry{value: stored}
	s.mu.Unlock()

	return nil
}

// Expire sets the time-to-live of an existing key. A non-positive TTL
// removes any expiry. Expiring a missing key returns ErrNotFound.
func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"memory", "expire",
		).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.items[key]
	if !exists || entry.expired(time.Now()) {
		return ErrNotFound
	}

	if ttl <= 0 {
		entry.expiresAt = time.Time{}
		return nil
	}

	entry.expiresAt = time.Now().Add(ttl)
	return nil
}

// Close stops the cleanup goroutine.
func (s *memoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// cleanupLoop periodically removes expired entries.
func (s *memoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries.
func (s *memoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("memory store cleanup",
			observability.Int("removed", removed),
			observability.Int("remaining", len(s.items)))
	}
}

// Ensure memoryStore implements Store.
var _ Store = (*memoryStore)(nil)
