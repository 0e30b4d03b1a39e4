package domain

import (
	"context"
)

// PolicyResolver resolves a (insurer, drug, indication) tuple to the coverage
// policy governing the request. Implementations return ErrPolicyNotFound when
// no policy exists for the pair; callers treat that as a configuration error,
// not a clinical denial.
type PolicyResolver interface {
	Resolve(ctx context.Context, insurer, drugName string, indication Indication) (*CoveragePolicy, error)
}

// Cache memoizes evaluation results by request identity. Implementations must
// be safe for concurrent use; races between identical idempotent evaluations
// resolve via last-write-wins. A nil or no-op cache is always valid.
type Cache interface {
	// Get returns the cached result for the key, or (nil, false) on miss or
	// on any backend failure. Entries past their freshness window are misses.
	Get(ctx context.Context, namespace, key string) (*EvaluationResult, bool)
	// Set stores the result under the key. Failures are swallowed; caching is
	// a performance optimization, never a correctness dependency.
	Set(ctx context.Context, namespace, key string, value *EvaluationResult)
}

// PolicyStore provides access to externally authored coverage policies.
type PolicyStore interface {
	GetPolicy(ctx context.Context, insurer, drugName string) (*CoveragePolicy, error)
	ListPolicies(ctx context.Context, insurer string) ([]*CoveragePolicy, error)
	SavePolicy(ctx context.Context, policy *CoveragePolicy) error
}

// AuditStore records completed evaluations for PA-submission auditability.
// The pipeline works without one; recording failures never fail an evaluation.
type AuditStore interface {
	Record(ctx context.Context, result *EvaluationResult) error
	GetByPatient(ctx context.Context, patientID string, limit int) ([]*EvaluationResult, error)
}
