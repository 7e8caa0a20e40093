package store

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
)

// Common store errors.
var (
	// ErrNotFound indicates that the key was not found in the store.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidConfig indicates that the store configuration is invalid.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrConnectionFailed indicates that the store connection failed.
	ErrConnectionFailed = errors.New("store connection failed")
)

// Store is a shared key-value store with optional per-key expiry.
//
// Implementations must be safe for concurrent use. Errors other than
// ErrNotFound indicate an operational failure and must be surfaced to
// the caller, never treated as a miss.
type Store interface {
	// Get retrieves a value from the store.
	// Returns ErrNotFound if the key is not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under the given key without expiry.
	Set(ctx context.Context, key string, value []byte) error

	// Expire sets the time-to-live of an existing key. A non-positive
	// TTL removes any expiry.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close closes the store connection.
	Close() error
}

// New creates a store based on the configuration.
func New(cfg *config.CacheConfig, logger observability.Logger) (Store, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case config.StoreTypeMemory, "":
		return newMemoryStore(logger), nil
	case config.StoreTypeRedis:
		return newRedisStore(cfg.Redis, logger)
	default:
		return nil, errors.New("unknown store type: " + cfg.Type)
	}
}

// storeTracerName is the OpenTelemetry tracer name for store operations.
const storeTracerName = "avguard/store"
