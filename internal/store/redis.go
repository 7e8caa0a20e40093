package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avguard/internal/config"
	"github.com/vyrodovalexey/avguard/internal/observability"
)

// redisStore implements a Redis-backed key-value store.
type redisStore struct {
	logger    observability.Logger
	client    *redis.Client
	keyPrefix string
}

// newRedisStore creates a new Redis store.
func newRedisStore(cfg *config.RedisConfig, logger observability.Logger) (*redisStore, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.New("invalid redis URL: " + err.Error())
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewClient(opts)

	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, errors.New("redis connection failed: " + err.Error())
	}

	s := &redisStore{
		logger:    logger,
		client:    client,
		keyPrefix: resolveKeyPrefix(cfg.KeyPrefix),
	}

	logger.Info("redis store initialized",
		observability.String("keyPrefix", s.keyPrefix),
		observability.Int("poolSize", opts.PoolSize))

	return s, nil
}

// pingRedis tests the Redis connection with a timeout.
func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// resolveKeyPrefix returns the key prefix, defaulting to "avguard:" if empty.
func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return "avguard:"
	}
	return prefix
}

// resolveKey applies the key prefix.
func (s *redisStore) resolveKey(key string) string {
	return s.keyPrefix + key
}

// Get retrieves a value from the store.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(storeTracerName).Start(ctx, "store.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.backend", "redis"),
			attribute.String("store.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"redis", "get",
		).Observe(time.Since(start).Seconds())
	}()

	value, err := s.client.Get(ctx, s.resolveKey(key)).Bytes()
	if err == nil {
		span.SetAttributes(
			attribute.Bool("store.found", true),
			attribute.Int("store.value_size", len(value)),
		)
		return value, nil
	}

	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("store.found", false))
		return nil, ErrNotFound
	}

	GetStoreMetrics().errorsTotal.WithLabelValues("redis", "get").Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	s.logger.Error("redis get failed",
		observability.String("key", key),
		observability.Error(err))
	return nil, err
}

// Set stores a value under the given key without expiry.
func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, span := otel.Tracer(storeTracerName).Start(ctx, "store.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.backend", "redis"),
			attribute.String("store.key", key),
			attribute.Int("store.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"redis", "set",
		).Observe(time.Since(start).Seconds())
	}()

	if err := s.client.Set(ctx, s.resolveKey(key), value, 0).Err(); err != nil {
		GetStoreMetrics().errorsTotal.WithLabelValues("redis", "set").Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		s.logger.Error("redis set failed",
			observability.String("key", key),
			observability.Error(err))
		return err
	}

	return nil
}

// Expire sets the time-to-live of an existing key. A non-positive TTL
// removes any expiry.
func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, span := otel.Tracer(storeTracerName).Start(ctx, "store.Expire",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.backend", "redis"),
			attribute.String("store.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetStoreMetrics().operationDuration.WithLabelValues(
			"redis", "expire",
		).Observe(time.Since(start).Seconds())
	}()

	fullKey := s.resolveKey(key)

	var err error
	if ttl <= 0 {
		err = s.client.Persist(ctx, fullKey).Err()
	} else {
		err = s.client.Expire(ctx, fullKey, ttl).Err()
	}

	if err != nil {
		GetStoreMetrics().errorsTotal.WithLabelValues("redis", "expire").Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		s.logger.Error("redis expire failed",
			observability.String("key", key),
			observability.Error(err))
		return err
	}

	return nil
}

// Close closes the Redis connection.
func (s *redisStore) Close() error {
	s.logger.Info("redis store closing")
	return s.client.Close()
}

// Ensure redisStore implements Store.
var _ Store = (*redisStore)(nil)
