// Package cache provides evaluation-result caches behind the domain.Cache
// interface: an in-process expirable LRU, a Redis-backed cache wrapped in a
// circuit breaker, and a no-op cache for disabled configurations. All
// backends are read-through safe: any failure is a miss, never an error the
// pipeline sees.
package cache

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

// DefaultTTL is the evaluation-result freshness window. Stale clinical data
// is worse than recomputation, so the window is short.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries bounds the in-process cache.
const DefaultMaxEntries = 1024

// New builds the cache selected by config. Unknown backends and Redis
// connection failures degrade to the in-process cache with a warning.
func New(logger *logrus.Logger, cfg domain.CacheConfig) domain.Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch cfg.Backend {
	case "none":
		return NewNoop()
	case "redis":
		c, err := NewRedis(logger, cfg)
		if err != nil {
			logger.WithError(err).Warn("Redis cache unavailable; falling back to in-process cache")
			return NewMemory(logger, cfg.MaxEntries, ttl)
		}
		return c
	case "", "memory":
		return NewMemory(logger, cfg.MaxEntries, ttl)
	default:
		logger.WithField("backend", cfg.Backend).Warn("Unknown cache backend; using in-process cache")
		return NewMemory(logger, cfg.MaxEntries, ttl)
	}
}
