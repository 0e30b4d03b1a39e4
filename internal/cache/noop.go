package cache

import (
	"context"

	"github.com/pa-evaluation-engine/internal/domain"
)

// Noop is the disabled cache: every read misses, every write is dropped.
type Noop struct{}

// NewNoop returns the disabled cache.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string, string) (*domain.EvaluationResult, bool) {
	return nil, false
}

func (*Noop) Set(context.Context, string, string, *domain.EvaluationResult) {}
