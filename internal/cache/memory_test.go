package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func sampleResult(id string) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		ID:        id,
		PatientID: "pt-1",
		Insurer:   "Acme Health",
		DrugName:  "Wegovy",
		Dose:      "2.4 mg",
		Likelihood: domain.ApprovalLikelihood{
			Score:      95,
			Confidence: domain.ConfidenceHigh,
		},
	}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(testLogger(), 10, time.Minute)
	ctx := context.Background()

	_, ok := m.Get(ctx, "evaluation", "k1")
	assert.False(t, ok)

	m.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))

	got, ok := m.Get(ctx, "evaluation", "k1")
	require.True(t, ok)
	assert.Equal(t, "ev-1", got.ID)
}

func TestMemory_NamespaceIsolation(t *testing.T) {
	m := NewMemory(testLogger(), 10, time.Minute)
	ctx := context.Background()

	m.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))

	_, ok := m.Get(ctx, "other", "k1")
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory(testLogger(), 10, 20*time.Millisecond)
	ctx := context.Background()

	m.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))
	time.Sleep(50 * time.Millisecond)

	_, ok := m.Get(ctx, "evaluation", "k1")
	assert.False(t, ok, "entries past the TTL are misses")
}

func TestMemory_LRUBound(t *testing.T) {
	m := NewMemory(testLogger(), 2, time.Minute)
	ctx := context.Background()

	m.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))
	m.Set(ctx, "evaluation", "k2", sampleResult("ev-2"))
	m.Set(ctx, "evaluation", "k3", sampleResult("ev-3"))

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(ctx, "evaluation", "k1")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestMemory_CopyOnRead(t *testing.T) {
	m := NewMemory(testLogger(), 10, time.Minute)
	ctx := context.Background()

	m.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))

	first, ok := m.Get(ctx, "evaluation", "k1")
	require.True(t, ok)
	first.Metadata.FromCache = true

	second, ok := m.Get(ctx, "evaluation", "k1")
	require.True(t, ok)
	assert.False(t, second.Metadata.FromCache, "reads must not mutate the stored entry")
}

func TestNew_BackendSelection(t *testing.T) {
	logger := testLogger()

	assert.IsType(t, &Noop{}, New(logger, domain.CacheConfig{Backend: "none"}))
	assert.IsType(t, &Memory{}, New(logger, domain.CacheConfig{Backend: "memory"}))
	assert.IsType(t, &Memory{}, New(logger, domain.CacheConfig{Backend: ""}))
	assert.IsType(t, &Memory{}, New(logger, domain.CacheConfig{Backend: "carrier-pigeon"}))
}

func TestNoop(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	n.Set(ctx, "evaluation", "k1", sampleResult("ev-1"))
	_, ok := n.Get(ctx, "evaluation", "k1")
	assert.False(t, ok)
}
