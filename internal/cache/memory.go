package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

// Memory is an in-process evaluation cache on an expirable LRU. Entries age
// out at the TTL and the LRU bound caps memory; both eviction paths count as
// misses. Safe for concurrent use.
type Memory struct {
	logger *logrus.Logger
	lru    *expirable.LRU[string, *domain.EvaluationResult]
}

// NewMemory creates an in-process cache holding at most maxEntries results
// for at most ttl each.
func NewMemory(logger *logrus.Logger, maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		logger: logger,
		lru:    expirable.NewLRU[string, *domain.EvaluationResult](maxEntries, nil, ttl),
	}
}

// Get returns the cached result, or (nil, false) on miss or expiry.
func (m *Memory) Get(_ context.Context, namespace, key string) (*domain.EvaluationResult, bool) {
	result, ok := m.lru.Get(namespace + ":" + key)
	if !ok {
		return nil, false
	}
	// Hand out a shallow copy so callers marking FromCache don't mutate the
	// stored entry.
	out := *result
	return &out, true
}

// Set stores the result. Last write wins on concurrent identical keys.
func (m *Memory) Set(_ context.Context, namespace, key string, value *domain.EvaluationResult) {
	m.lru.Add(namespace+":"+key, value)
}

// Len returns the number of live entries, for metrics and tests.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.lru.Purge()
}
