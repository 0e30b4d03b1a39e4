package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pa-evaluation-engine/internal/domain"
)

// cachedResult is the Redis envelope. ExpiresAt is checked on read in
// addition to the Redis TTL, so a clock-skewed or TTL-stripped entry is still
// treated as stale.
type cachedResult struct {
	Data      *domain.EvaluationResult `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// Redis is an evaluation cache backed by Redis, wrapped in a circuit breaker
// so a degraded Redis turns into fast misses instead of per-request timeouts.
type Redis struct {
	logger  *logrus.Logger
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// NewRedis connects to Redis and verifies the connection before returning.
func NewRedis(logger *logrus.Logger, cfg domain.CacheConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "evaluation-cache",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Cache circuit breaker state change")
		},
	})

	return &Redis{logger: logger, client: client, breaker: breaker, ttl: ttl}, nil
}

// Get returns the cached result, or (nil, false) on miss, expiry, corruption
// or any backend failure.
func (r *Redis) Get(ctx context.Context, namespace, key string) (*domain.EvaluationResult, bool) {
	redisKey := r.key(namespace, key)

	val, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Get(ctx, redisKey).Result()
	})
	if err != nil {
		if err != redis.Nil && err != gobreaker.ErrOpenState {
			r.logger.WithError(err).Debug("Cache get failed")
		}
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val.(string)), &cached); err != nil {
		// Corrupted entry: drop it and miss.
		r.client.Del(ctx, redisKey)
		return nil, false
	}
	if time.Now().After(cached.ExpiresAt) {
		r.client.Del(ctx, redisKey)
		return nil, false
	}
	return cached.Data, true
}

// Set stores the result under the namespaced key. Failures are logged and
// swallowed.
func (r *Redis) Set(ctx context.Context, namespace, key string, value *domain.EvaluationResult) {
	now := time.Now()
	payload, err := json.Marshal(cachedResult{
		Data:      value,
		CachedAt:  now,
		ExpiresAt: now.Add(r.ttl),
	})
	if err != nil {
		r.logger.WithError(err).Warn("Failed to marshal cache entry")
		return
	}

	if _, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.key(namespace, key), payload, r.ttl).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		r.logger.WithError(err).Debug("Cache set failed")
	}
}

func (r *Redis) key(namespace, key string) string {
	return "pa:" + namespace + ":" + key
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
