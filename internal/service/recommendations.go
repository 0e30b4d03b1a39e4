package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pa-evaluation-engine/internal/domain"
)

// MaxRecommendations caps the remediation list so the response stays
// actionable rather than exhaustive.
const MaxRecommendations = 5

// consolidateDocGapsAbove is the documentation-gap count past which individual
// gap recommendations collapse into a single chart-review recommendation.
const consolidateDocGapsAbove = 2

var priorityRank = map[domain.RecommendationPriority]int{
	domain.PriorityHigh:   0,
	domain.PriorityMedium: 1,
	domain.PriorityLow:    2,
}

// BuildRecommendations derives prioritized remediation steps from unmet and
// partial criterion results. Critical failures rank high, documentation gaps
// consolidate when numerous, and the list is capped at MaxRecommendations.
// The sort is stable, so equal-priority items keep policy order.
func BuildRecommendations(results []domain.CriterionResult) []domain.Recommendation {
	var recs []domain.Recommendation
	docGaps := 0

	for _, r := range results {
		switch r.Status {
		case domain.StatusNotMet, domain.StatusPartiallyMet, domain.StatusWarning:
			recs = append(recs, recommendationFor(r))
		case domain.StatusPendingDocumentation:
			docGaps++
			recs = append(recs, recommendationFor(r))
		case domain.StatusNotEvaluated:
			recs = append(recs, domain.Recommendation{
				Priority:      domain.PriorityMedium,
				CriterionType: r.CriterionType,
				Message:       fmt.Sprintf("Criterion %s could not be evaluated", r.CriterionType),
				Action:        "Retry the evaluation or review the request manually",
			})
		}
	}

	// Many documentation gaps usually mean the chart was never abstracted:
	// one consolidated review beats a list of individual fetch tasks.
	if docGaps > consolidateDocGapsAbove {
		kept := recs[:0]
		for _, rec := range recs {
			if !strings.HasPrefix(rec.Message, "Documentation missing") {
				kept = append(kept, rec)
			}
		}
		recs = append(kept, domain.Recommendation{
			Priority: domain.PriorityHigh,
			Message:  fmt.Sprintf("%d criteria are missing documentation", docGaps),
			Action:   "Perform a full chart review and attach supporting records",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})

	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

func recommendationFor(r domain.CriterionResult) domain.Recommendation {
	priority := domain.PriorityMedium
	switch {
	case r.Critical:
		priority = domain.PriorityHigh
	case r.Status == domain.StatusWarning:
		priority = domain.PriorityLow
	}

	message := r.Reason
	if r.Status == domain.StatusPendingDocumentation {
		message = fmt.Sprintf("Documentation missing for %s: %s", r.CriterionType, r.Reason)
	}

	action := r.Recommendation
	if action == "" {
		switch {
		case r.RequiredNextDose != "":
			action = fmt.Sprintf("Request dose %s instead", r.RequiredNextDose)
		case r.NeedsReauthorization:
			action = "Submit a reauthorization request"
		case r.RequiresJustification:
			action = "Attach clinical justification for the dose change"
		default:
			action = fmt.Sprintf("Review the %s requirement: %s", r.CriterionType, r.Requirement)
		}
	}

	return domain.Recommendation{
		Priority:      priority,
		CriterionType: r.CriterionType,
		Message:       message,
		Action:        action,
	}
}
