// Package store provides the shared key-value store used by the
// group-membership cache.
//
// Two backends are available:
//
//   - In-memory store with per-key expiry, for tests and single-process
//     deployments
//   - Redis store for deployments where multiple processes share cached
//     membership results
//
// The store exposes only the three operations the membership cache
// needs: Get, Set and Expire. A missing key is reported as ErrNotFound;
// any other error indicates an operational failure and is propagated to
// the caller rather than being treated as a miss.
//
// # Example Usage
//
//	cfg := &config.CacheConfig{
//	    Enabled: true,
//	    Type:    config.StoreTypeRedis,
//	    Redis:   &config.RedisConfig{URL: "redis://localhost:6379"},
//	}
//
//	st, err := store.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
// # Thread Safety
//
// All store implementations are safe for concurrent use.
package store
