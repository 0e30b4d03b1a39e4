package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

// TableResolver resolves coverage policies from the built-in table, with an
// optional external policy store consulted first. Resolution applies the
// dual-indication override and payer weight-loss exclusions, so the policy a
// caller receives already reflects the criteria set the payer would apply.
type TableResolver struct {
	logger   *logrus.Logger
	store    domain.PolicyStore
	policies map[string][]*domain.CoveragePolicy // key: insurer|drug, lowercase
}

// NewTableResolver builds a resolver over the built-in policy table. store is
// optional; when present its policies take precedence over built-ins.
func NewTableResolver(logger *logrus.Logger, store domain.PolicyStore) *TableResolver {
	r := &TableResolver{
		logger:   logger,
		store:    store,
		policies: make(map[string][]*domain.CoveragePolicy),
	}
	for _, p := range builtinPolicies() {
		key := policyKey(p.Insurer, p.DrugName)
		r.policies[key] = append(r.policies[key], p)
	}
	return r
}

func policyKey(insurer, drugName string) string {
	return strings.ToLower(strings.TrimSpace(insurer)) + "|" + strings.ToLower(strings.TrimSpace(drugName))
}

// Resolve returns the coverage policy governing the (insurer, drug,
// indication) tuple. The returned policy is always a clone; callers may not
// observe table mutations. ErrPolicyNotFound means no policy exists for the
// insurer/drug pair at all, which is a configuration gap rather than a denial.
func (r *TableResolver) Resolve(ctx context.Context, insurer, drugName string, indication domain.Indication) (*domain.CoveragePolicy, error) {
	candidates := r.candidates(ctx, insurer, drugName)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("resolve %s/%s: %w", insurer, drugName, domain.ErrPolicyNotFound)
	}

	// Exact indication match wins.
	if indication != "" {
		for _, p := range candidates {
			if p.Indication == indication {
				return r.applyExclusions(p.Clone()), nil
			}
		}
		// Dual-indication override: a diabetes-labeled drug requested for
		// weight loss is evaluated under weight-management criteria.
		if indication == domain.IndicationWeightLoss {
			for _, p := range candidates {
				if p.Indication == domain.IndicationDiabetes {
					r.logger.WithFields(logrus.Fields{
						"insurer": insurer,
						"drug":    drugName,
					}).Info("Applying dual-indication override: weight-loss request against diabetes-labeled policy")
					return r.applyExclusions(ApplyIndicationOverride(p, indication)), nil
				}
			}
		}
		return nil, fmt.Errorf("resolve %s/%s for %s: %w", insurer, drugName, indication, domain.ErrPolicyNotFound)
	}

	// No indication given: the drug's labeled policy applies as-is.
	return r.applyExclusions(candidates[0].Clone()), nil
}

// candidates merges external-store policies (first, higher precedence) with
// the built-in table. Store failures degrade to built-ins with a warning.
func (r *TableResolver) candidates(ctx context.Context, insurer, drugName string) []*domain.CoveragePolicy {
	var out []*domain.CoveragePolicy
	if r.store != nil {
		p, err := r.store.GetPolicy(ctx, insurer, drugName)
		switch {
		case err == nil && p != nil:
			out = append(out, p)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			r.logger.WithError(err).WithFields(logrus.Fields{
				"insurer": insurer,
				"drug":    drugName,
			}).Warn("External policy store lookup failed; falling back to built-in table")
		}
	}
	return append(out, r.policies[policyKey(insurer, drugName)]...)
}

// applyExclusions enforces payer-level coverage exclusions on a cloned policy.
func (r *TableResolver) applyExclusions(p *domain.CoveragePolicy) *domain.CoveragePolicy {
	if p.Indication == domain.IndicationWeightLoss && insurerExcludesWeightLoss(p.Insurer) {
		p.Covered = false
		p.RequiresPA = false
	}
	return p
}

// ApplyIndicationOverride rewrites a policy's criteria set for a different
// indication than the one it was authored for. The input policy is not
// mutated; the override operates on a clone. Currently the only supported
// override is diabetes-labeled to weight-loss, which swaps in the standard
// weight-management criteria while keeping the drug's dose schedule and
// benefit metadata.
func ApplyIndicationOverride(p *domain.CoveragePolicy, indication domain.Indication) *domain.CoveragePolicy {
	out := p.Clone()
	if indication == p.Indication {
		return out
	}
	out.Indication = indication
	if indication == domain.IndicationWeightLoss {
		out.PACriteria = weightManagementCriteria()
		out.EvaluationRules = nil
	}
	return out
}
