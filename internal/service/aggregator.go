package service

import (
	"fmt"

	"github.com/pa-evaluation-engine/internal/domain"
)

// Score bands. The aggregate score is an ordinal banding, not a probability:
// a 75 is more approvable than a 40, but neither is a calibrated percentage.
const (
	ScoreAllMet          = 95
	ScoreMostlyMet       = 75
	ScoreMixed           = 40
	ScoreMostlyUnmet     = 15
	ScoreCriticalUnmet   = 5
	ScoreNoDetermination = 0
)

// AggregateLikelihood folds per-criterion results into a single approval
// likelihood. NOT_APPLICABLE results never count toward the denominator, and
// any critical NOT_MET short-circuits to a confident denial regardless of how
// many other criteria passed.
func AggregateLikelihood(results []domain.CriterionResult) domain.ApprovalLikelihood {
	var (
		applicable int
		met        int
	)
	for _, r := range results {
		if !r.Status.CountsTowardDenominator() {
			continue
		}
		applicable++
		if r.Status == domain.StatusMet {
			met++
		}
		if r.Critical && r.Status == domain.StatusNotMet {
			return domain.ApprovalLikelihood{
				Score:      ScoreCriticalUnmet,
				Confidence: domain.ConfidenceHigh,
				ColorClass: "red",
				Reason:     fmt.Sprintf("Critical requirement not met: %s", r.Reason),
				Action:     "Resolve the critical requirement before submitting",
			}
		}
	}

	// Zero applicable criteria is "no determination possible", not a denial.
	if applicable == 0 {
		return domain.ApprovalLikelihood{
			Score:      ScoreNoDetermination,
			Confidence: domain.ConfidenceUnknown,
			ColorClass: "gray",
			Reason:     "No applicable criteria; approval likelihood could not be determined",
			Action:     "Review policy configuration for this drug and dose phase",
		}
	}

	ratio := float64(met) / float64(applicable)
	switch {
	case met == applicable:
		return domain.ApprovalLikelihood{
			Score:      ScoreAllMet,
			Confidence: domain.ConfidenceHigh,
			ColorClass: "green",
			Reason:     fmt.Sprintf("All %d applicable criteria met", applicable),
			Action:     "Submit the prior authorization request",
		}
	case ratio >= 0.8:
		return domain.ApprovalLikelihood{
			Score:      ScoreMostlyMet,
			Confidence: domain.ConfidenceMedium,
			ColorClass: "yellow",
			Reason:     fmt.Sprintf("%d of %d applicable criteria met", met, applicable),
			Action:     "Address the remaining criteria before submitting",
		}
	case ratio >= 0.5:
		return domain.ApprovalLikelihood{
			Score:      ScoreMixed,
			Confidence: domain.ConfidenceLow,
			ColorClass: "orange",
			Reason:     fmt.Sprintf("Only %d of %d applicable criteria met", met, applicable),
			Action:     "Significant gaps remain; gather documentation before submitting",
		}
	default:
		return domain.ApprovalLikelihood{
			Score:      ScoreMostlyUnmet,
			Confidence: domain.ConfidenceLow,
			ColorClass: "red",
			Reason:     fmt.Sprintf("Most criteria unmet: %d of %d applicable criteria met", met, applicable),
			Action:     "Approval is unlikely; reassess eligibility or consider alternatives",
		}
	}
}
