package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

const cacheNamespace = "evaluation"

// EvaluationService orchestrates the PA evaluation pipeline: policy
// resolution, dose classification, criteria evaluation, aggregation and
// recommendation generation, with result caching and audit recording around
// the core.
type EvaluationService struct {
	logger   *logrus.Logger
	engine   *CriteriaEngine
	resolver domain.PolicyResolver
	cache    domain.Cache
	audit    domain.AuditStore

	now func() time.Time
}

// NewEvaluationService creates the evaluation pipeline. cache and audit may be
// nil; the pipeline then runs uncached and unrecorded.
func NewEvaluationService(logger *logrus.Logger, engine *CriteriaEngine, resolver domain.PolicyResolver, cache domain.Cache, audit domain.AuditStore) *EvaluationService {
	return &EvaluationService{
		logger:   logger,
		engine:   engine,
		resolver: resolver,
		cache:    cache,
		audit:    audit,
		now:      time.Now,
	}
}

// Evaluate runs one PA evaluation. Clinical denials and "no determination"
// outcomes are successful results; the returned error is reserved for invalid
// input and infrastructure failures.
func (s *EvaluationService) Evaluate(ctx context.Context, req *domain.EvaluationRequest) (*domain.EvaluationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, domain.NewEvaluationError(domain.ErrCodeInvalidInput, "invalid evaluation request", err.Error(), "")
	}

	key := cacheKey(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheNamespace, key); ok {
			s.logger.WithFields(logrus.Fields{
				"patient_id": req.Patient.ID,
				"drug":       req.DrugName,
				"dose":       req.Dose,
			}).Debug("Returning cached evaluation result")
			cached.Metadata.FromCache = true
			return cached, nil
		}
	}

	policy, err := s.resolver.Resolve(ctx, req.Insurer, req.DrugName, req.Indication)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyNotFound) {
			return s.noDeterminationResult(req, fmt.Sprintf("No coverage policy found for %s / %s", req.Insurer, req.DrugName)), nil
		}
		return nil, domain.NewEvaluationError(domain.ErrCodeDatabaseError, "policy resolution failed", err.Error(), "")
	}

	// A policy that exists but excludes the drug is a confident denial, which
	// is a different outcome than a missing policy.
	if !policy.Covered {
		result := s.newResult(req)
		result.Likelihood = domain.ApprovalLikelihood{
			Score:      ScoreNoDetermination,
			Confidence: domain.ConfidenceHigh,
			ColorClass: "red",
			Reason:     fmt.Sprintf("%s excludes %s from coverage for %s", req.Insurer, req.DrugName, indicationLabel(req.Indication)),
			Action:     "Discuss covered alternatives or a formulary exception with the prescriber",
		}
		result.Summary = result.Likelihood.Reason
		result.Recommendations = []domain.Recommendation{{
			Priority: domain.PriorityHigh,
			Message:  result.Likelihood.Reason,
			Action:   "Consider a covered alternative or file a formulary exception",
		}}
		s.finish(ctx, key, result)
		return result, nil
	}

	doseCtx := ClassifyDose(policy, req.Dose)
	criteria := policy.CriteriaForPhase(doseCtx.DoseType)
	if len(criteria) == 0 {
		return s.noDeterminationResult(req, fmt.Sprintf("Policy for %s / %s has no PA criteria configured for the %s phase", req.Insurer, req.DrugName, doseCtx.DoseType)), nil
	}

	results := s.engine.EvaluateAll(req.Patient, policy, doseCtx)
	likelihood := AggregateLikelihood(results)

	result := s.newResult(req)
	result.Dose = doseCtx.Dose
	result.Criteria = results
	result.Likelihood = likelihood
	result.Recommendations = BuildRecommendations(results)
	result.Metadata = buildMetadata(results, s.now())
	result.Summary = buildSummary(result)

	s.logger.WithFields(logrus.Fields{
		"patient_id": req.Patient.ID,
		"insurer":    req.Insurer,
		"drug":       req.DrugName,
		"dose":       result.Dose,
		"score":      likelihood.Score,
		"confidence": likelihood.Confidence,
	}).Info("Evaluation complete")

	s.finish(ctx, key, result)
	return result, nil
}

// finish handles the post-evaluation side effects. Neither cache writes nor
// audit writes may fail the evaluation.
func (s *EvaluationService) finish(ctx context.Context, key string, result *domain.EvaluationResult) {
	if s.cache != nil {
		s.cache.Set(ctx, cacheNamespace, key, result)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, result); err != nil {
			s.logger.WithError(err).WithField("evaluation_id", result.ID).Warn("Failed to record evaluation audit entry")
		}
	}
}

// noDeterminationResult builds the outcome for configuration gaps: a zero
// score with unknown confidence, which callers must not render as a denial.
func (s *EvaluationService) noDeterminationResult(req *domain.EvaluationRequest, reason string) *domain.EvaluationResult {
	s.logger.WithFields(logrus.Fields{
		"insurer": req.Insurer,
		"drug":    req.DrugName,
	}).Warn(reason)

	result := s.newResult(req)
	result.Likelihood = domain.ApprovalLikelihood{
		Score:      ScoreNoDetermination,
		Confidence: domain.ConfidenceUnknown,
		ColorClass: "gray",
		Reason:     reason,
		Action:     "Manual review required",
	}
	result.Summary = reason
	result.Recommendations = []domain.Recommendation{{
		Priority: domain.PriorityHigh,
		Message:  reason,
		Action:   "Route the request for manual benefits review",
	}}
	result.Metadata = domain.EvaluationMetadata{EvaluatedAt: s.now()}
	return result
}

func (s *EvaluationService) newResult(req *domain.EvaluationRequest) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		ID:         uuid.New().String(),
		PatientID:  req.Patient.ID,
		Insurer:    req.Insurer,
		DrugName:   req.DrugName,
		Dose:       NormalizeDose(req.Dose),
		Indication: req.Indication,
		Metadata:   domain.EvaluationMetadata{EvaluatedAt: s.now()},
	}
}

// cacheKey derives the request identity. Insurer and indication are part of
// the key so the same patient/drug/dose never collides across payers or
// criteria sets.
func cacheKey(req *domain.EvaluationRequest) string {
	raw := strings.Join([]string{
		req.Patient.ID,
		strings.ToLower(req.Insurer),
		strings.ToLower(req.DrugName),
		NormalizeDose(req.Dose),
		string(req.Indication),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func buildMetadata(results []domain.CriterionResult, evaluatedAt time.Time) domain.EvaluationMetadata {
	meta := domain.EvaluationMetadata{EvaluatedAt: evaluatedAt}
	var confidenceSum float64
	var confidenceCount int
	for _, r := range results {
		if !r.Status.CountsTowardDenominator() {
			continue
		}
		meta.TotalCount++
		if r.Status == domain.StatusMet {
			meta.MetCount++
		}
		if r.Confidence > 0 {
			confidenceSum += r.Confidence
			confidenceCount++
		}
	}
	if confidenceCount > 0 {
		meta.AverageConfidence = confidenceSum / float64(confidenceCount)
	}
	return meta
}

func buildSummary(result *domain.EvaluationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s for %s: %d of %d criteria met.",
		result.DrugName, result.Dose, result.PatientID,
		result.Metadata.MetCount, result.Metadata.TotalCount)

	switch {
	case result.Likelihood.Confidence == domain.ConfidenceUnknown:
		sb.WriteString(" Approval likelihood could not be determined.")
	case result.Likelihood.Score >= ScoreAllMet:
		sb.WriteString(" Approval is likely.")
	case result.Likelihood.Score >= ScoreMostlyMet:
		sb.WriteString(" Approval is possible with minor gaps.")
	case result.Likelihood.Score >= ScoreMixed:
		sb.WriteString(" Approval is uncertain.")
	default:
		sb.WriteString(" Approval is unlikely.")
	}
	if n := len(result.Recommendations); n > 0 {
		fmt.Fprintf(&sb, " %d recommended action(s).", n)
	}
	return sb.String()
}

func indicationLabel(ind domain.Indication) string {
	if ind == "" {
		return "the requested indication"
	}
	return strings.ReplaceAll(string(ind), "_", " ")
}
