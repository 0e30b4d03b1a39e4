package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
)

func TestBuildRecommendations_HighPriorityFirst(t *testing.T) {
	rs := []domain.CriterionResult{
		{CriterionType: domain.CriterionDocumentation, Status: domain.StatusNotMet, Reason: "missing chart elements"},
		{CriterionType: domain.CriterionContraindications, Status: domain.StatusNotMet, Critical: true, Reason: "contraindicated"},
		{CriterionType: domain.CriterionAge, Status: domain.StatusMet},
	}

	recs := BuildRecommendations(rs)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.PriorityHigh, recs[0].Priority)
	assert.Equal(t, domain.CriterionContraindications, recs[0].CriterionType)
}

func TestBuildRecommendations_MetProducesNothing(t *testing.T) {
	rs := []domain.CriterionResult{
		{CriterionType: domain.CriterionAge, Status: domain.StatusMet},
		{CriterionType: domain.CriterionBMI, Status: domain.StatusNotApplicable},
	}
	assert.Empty(t, BuildRecommendations(rs))
}

func TestBuildRecommendations_Cap(t *testing.T) {
	var rs []domain.CriterionResult
	for i := 0; i < 8; i++ {
		rs = append(rs, domain.CriterionResult{
			CriterionType: domain.CriterionLabValue,
			Status:        domain.StatusNotMet,
			Reason:        fmt.Sprintf("unmet requirement %d", i),
		})
	}

	recs := BuildRecommendations(rs)
	assert.Len(t, recs, MaxRecommendations)
}

func TestBuildRecommendations_ConsolidatesDocumentationGaps(t *testing.T) {
	rs := []domain.CriterionResult{
		{CriterionType: domain.CriterionBMI, Status: domain.StatusPendingDocumentation, Reason: "BMI not documented"},
		{CriterionType: domain.CriterionLabValue, Status: domain.StatusPendingDocumentation, Reason: "no HbA1c on file"},
		{CriterionType: domain.CriterionPrescriberQualification, Status: domain.StatusPendingDocumentation, Reason: "specialty not documented"},
		{CriterionType: domain.CriterionAge, Status: domain.StatusNotMet, Reason: "below minimum age"},
	}

	recs := BuildRecommendations(rs)

	var chartReviews int
	for _, rec := range recs {
		if rec.Action == "Perform a full chart review and attach supporting records" {
			chartReviews++
			assert.Equal(t, domain.PriorityHigh, rec.Priority)
		}
		assert.NotContains(t, rec.Message, "Documentation missing", "individual gaps should be consolidated")
	}
	assert.Equal(t, 1, chartReviews)
}

func TestBuildRecommendations_TwoDocGapsStayItemized(t *testing.T) {
	rs := []domain.CriterionResult{
		{CriterionType: domain.CriterionBMI, Status: domain.StatusPendingDocumentation, Reason: "BMI not documented"},
		{CriterionType: domain.CriterionLabValue, Status: domain.StatusPendingDocumentation, Reason: "no HbA1c on file"},
	}

	recs := BuildRecommendations(rs)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Contains(t, rec.Message, "Documentation missing")
	}
}

func TestBuildRecommendations_UsesProgressionDiagnostics(t *testing.T) {
	rs := []domain.CriterionResult{{
		CriterionType:    domain.CriterionDoseProgression,
		Status:           domain.StatusNotMet,
		Critical:         true,
		Reason:           "Cannot skip doses",
		RequiredNextDose: "0.5 mg",
	}}

	recs := BuildRecommendations(rs)
	require.Len(t, recs, 1)
	assert.Equal(t, "Request dose 0.5 mg instead", recs[0].Action)
}
