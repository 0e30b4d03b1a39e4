package service

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pa-evaluation-engine/internal/domain"
)

func newTestEngine(t *testing.T) *CriteriaEngine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	e := NewCriteriaEngine(logger, domain.EvaluationConfig{})
	e.now = func() time.Time { return progressionNow }
	e.progression.now = func() time.Time { return progressionNow }
	return e
}

// weightLossPatient is a qualifying weight-management renewal patient: BMI in
// the comorbidity band with hypertension, on 1.7 mg for 35 days, 6% loss
// maintained for 4 months, enrolled in a weight program.
func weightLossPatient() *domain.PatientSnapshot {
	birth := time.Date(1983, 3, 14, 0, 0, 0, 0, time.UTC)
	stepStart := progressionNow.AddDate(0, 0, -35)
	return &domain.PatientSnapshot{
		ID:        "pt-sj",
		BirthDate: &birth,
		Vitals:    domain.Vitals{BMI: 28.4},
		Diagnoses: []domain.Diagnosis{
			{Code: "I10", Description: "Essential hypertension"},
			{Code: "E66.9", Description: "Obesity, unspecified"},
		},
		Medications: []domain.Medication{
			{Name: "Lisinopril 10mg", Status: "active"},
			{Name: "Phentermine 37.5mg", Status: "completed"},
		},
		TherapyHistory: []domain.TherapyEpisode{{
			DrugName:    "Wegovy",
			Status:      "active",
			CurrentDose: "1.7 mg",
			DoseSteps: []domain.DoseStep{
				{Dose: "1.7 mg", Phase: domain.PhaseTitration, StartDate: stepStart},
			},
		}},
		ClinicalNotes: &domain.ClinicalNotes{
			InitialWeightLossPercentage: 6.2,
			CurrentWeightLossPercentage: 6.0,
			WeightMaintenanceMonths:     4,
			HasWeightProgram:            true,
		},
		Labs: []domain.LabResult{
			{Name: "HbA1c", Value: 5.9, Unit: "%", CollectedAt: progressionNow.AddDate(0, -1, 0)},
		},
	}
}

func weightLossPolicy() *domain.CoveragePolicy {
	p := testSchedulePolicy()
	p.Indication = domain.IndicationWeightLoss
	p.PACriteria = []domain.CriterionSpec{
		{Type: domain.CriterionAge, Critical: true, MinAge: 18},
		{Type: domain.CriterionBMI, Critical: true},
		{Type: domain.CriterionLifestyleModification},
		{Type: domain.CriterionStepTherapy, PreferredAlternatives: []string{"phentermine", "orlistat"}},
		{Type: domain.CriterionContraindications, Critical: true},
		{Type: domain.CriterionDoseProgression, Critical: true},
		{Type: domain.CriterionWeightLoss, MinPercentage: 5,
			AppliesTo: []domain.DosePhase{domain.PhaseTitration, domain.PhaseMaintenance}},
		{Type: domain.CriterionWeightMaintained, MinPercentage: 5, MinMonths: 3,
			AppliesTo: []domain.DosePhase{domain.PhaseMaintenance}},
		{Type: domain.CriterionDocumentation},
	}
	return p
}

func resultFor(t *testing.T, results []domain.CriterionResult, ct domain.CriterionType) domain.CriterionResult {
	t.Helper()
	for _, r := range results {
		if r.CriterionType == ct {
			return r
		}
	}
	t.Fatalf("no result for criterion %s", ct)
	return domain.CriterionResult{}
}

func TestEvaluateAll_RenewalAllMet(t *testing.T) {
	e := newTestEngine(t)
	policy := weightLossPolicy()
	patient := weightLossPatient()

	doseCtx := ClassifyDose(policy, "2.4 mg")
	require.True(t, doseCtx.IsMaintenanceDose)

	results := e.EvaluateAll(patient, policy, doseCtx)
	require.Len(t, results, len(policy.PACriteria))

	for _, r := range results {
		assert.Equal(t, domain.StatusMet, r.Status, "criterion %s: %s", r.CriterionType, r.Reason)
	}

	bmi := resultFor(t, results, domain.CriterionBMI)
	assert.Contains(t, bmi.MatchedComorbidities, "hypertension")
}

func TestEvaluateAll_PhaseGating(t *testing.T) {
	e := newTestEngine(t)
	policy := weightLossPolicy()
	patient := &domain.PatientSnapshot{
		ID:     "pt-new",
		Age:    40,
		Vitals: domain.Vitals{BMI: 31.0},
		Medications: []domain.Medication{
			{Name: "Orlistat", Status: "completed"},
		},
		Diagnoses:     []domain.Diagnosis{{Description: "Obesity"}},
		ClinicalNotes: &domain.ClinicalNotes{HasWeightProgram: true},
	}

	doseCtx := ClassifyDose(policy, "0.25 mg")
	results := e.EvaluateAll(patient, policy, doseCtx)

	// Response criteria cannot apply before therapy starts.
	assert.Equal(t, domain.StatusNotApplicable, resultFor(t, results, domain.CriterionWeightLoss).Status)
	assert.Equal(t, domain.StatusNotApplicable, resultFor(t, results, domain.CriterionWeightMaintained).Status)
	assert.Equal(t, domain.StatusMet, resultFor(t, results, domain.CriterionDoseProgression).Status)
}

func TestEvaluateBMI_Tiers(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionBMI, Critical: true}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseStarting, IsStartingDose: true}

	tests := []struct {
		name      string
		bmi       float64
		diagnoses []domain.Diagnosis
		want      domain.CriterionStatus
	}{
		{"standalone threshold", 30.0, nil, domain.StatusMet},
		{"band with comorbidity", 27.5, []domain.Diagnosis{{Description: "Type 2 diabetes"}}, domain.StatusMet},
		{"band without comorbidity", 27.5, nil, domain.StatusNotMet},
		{"below band", 25.0, []domain.Diagnosis{{Description: "Hypertension"}}, domain.StatusNotMet},
		{"undocumented", 0, nil, domain.StatusPendingDocumentation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patient := &domain.PatientSnapshot{
				ID:        "pt-1",
				Vitals:    domain.Vitals{BMI: tt.bmi},
				Diagnoses: tt.diagnoses,
			}
			r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
			assert.Equal(t, tt.want, r.Status, r.Reason)
		})
	}
}

func TestEvaluateWeightMaintained_BothLegsRequired(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionWeightMaintained, MinPercentage: 5, MinMonths: 3}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseMaintenance, IsMaintenanceDose: true}

	// Peak loss met but current percentage fell below threshold: not met.
	patient := &domain.PatientSnapshot{
		ID: "pt-1",
		ClinicalNotes: &domain.ClinicalNotes{
			InitialWeightLossPercentage: 7.0,
			CurrentWeightLossPercentage: 4.0,
			WeightMaintenanceMonths:     6,
		},
	}
	r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
	assert.Equal(t, domain.StatusNotMet, r.Status)
	assert.Contains(t, r.Reason, "fallen below")

	// Duration short: not met.
	patient.ClinicalNotes.CurrentWeightLossPercentage = 6.0
	patient.ClinicalNotes.WeightMaintenanceMonths = 1
	r = e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
	assert.Equal(t, domain.StatusNotMet, r.Status)

	// Both legs hold.
	patient.ClinicalNotes.WeightMaintenanceMonths = 3
	r = e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
	assert.Equal(t, domain.StatusMet, r.Status)
}

func TestEvaluateWeightMaintained_ToleranceBand(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	e := NewCriteriaEngine(logger, domain.EvaluationConfig{MaintenanceTolerancePercent: 1.0})

	spec := domain.CriterionSpec{Type: domain.CriterionWeightMaintained, MinPercentage: 5, MinMonths: 3}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseMaintenance, IsMaintenanceDose: true}
	patient := &domain.PatientSnapshot{
		ID: "pt-1",
		ClinicalNotes: &domain.ClinicalNotes{
			CurrentWeightLossPercentage: 4.5,
			WeightMaintenanceMonths:     4,
		},
	}

	r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
	assert.Equal(t, domain.StatusMet, r.Status)
}

func TestEvaluateContraindications_AlwaysCritical(t *testing.T) {
	e := newTestEngine(t)
	// Spec says non-critical; contraindications escalate anyway.
	spec := domain.CriterionSpec{Type: domain.CriterionContraindications, Critical: false}
	patient := &domain.PatientSnapshot{
		ID:        "pt-1",
		Diagnoses: []domain.Diagnosis{{Description: "History of acute pancreatitis"}},
	}

	r := e.Evaluate(patient, spec, weightLossPolicy(), domain.DoseContext{DoseType: domain.PhaseStarting})
	assert.Equal(t, domain.StatusNotMet, r.Status)
	assert.True(t, r.Critical)
	assert.Contains(t, r.Reason, "pancreatitis")
}

func TestEvaluatePriorTherapies_PartiallyMet(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{
		Type:                  domain.CriterionPriorTherapies,
		MinTrials:             2,
		PreferredAlternatives: []string{"phentermine", "orlistat", "naltrexone-bupropion"},
	}
	patient := &domain.PatientSnapshot{
		ID:          "pt-1",
		Medications: []domain.Medication{{Name: "Phentermine 37.5mg", Status: "completed"}},
	}

	r := e.Evaluate(patient, spec, weightLossPolicy(), domain.DoseContext{DoseType: domain.PhaseStarting})
	assert.Equal(t, domain.StatusPartiallyMet, r.Status)
	assert.Contains(t, r.Reason, "1 of 2")
}

func TestEvaluateStepTherapy_MatchesTherapyHistory(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{
		Type:                domain.CriterionStepTherapy,
		RequiredMedications: []string{"metformin"},
	}
	patient := &domain.PatientSnapshot{
		ID: "pt-1",
		TherapyHistory: []domain.TherapyEpisode{
			{DrugName: "Metformin", Status: "completed"},
		},
	}

	r := e.Evaluate(patient, spec, weightLossPolicy(), domain.DoseContext{DoseType: domain.PhaseStarting})
	assert.Equal(t, domain.StatusMet, r.Status)
}

func TestEvaluateLabValue(t *testing.T) {
	e := newTestEngine(t)
	min := 6.5
	spec := domain.CriterionSpec{Type: domain.CriterionLabValue, LabName: "HbA1c", MinLabValue: &min}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseStarting}

	t.Run("uses latest result", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID: "pt-1",
			Labs: []domain.LabResult{
				{Name: "HbA1c", Value: 7.2, CollectedAt: progressionNow.AddDate(0, -6, 0)},
				{Name: "HbA1c", Value: 6.1, CollectedAt: progressionNow.AddDate(0, -1, 0)},
			},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusNotMet, r.Status)
		assert.Equal(t, "6.10", r.Value)
	})

	t.Run("missing lab pends documentation", func(t *testing.T) {
		r := e.Evaluate(&domain.PatientSnapshot{ID: "pt-1"}, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusPendingDocumentation, r.Status)
	})
}

func TestEvaluateDocumentation_ItemizesMissing(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionDocumentation}
	patient := &domain.PatientSnapshot{
		ID:        "pt-1",
		Diagnoses: []domain.Diagnosis{{Description: "Obesity"}},
	}

	r := e.Evaluate(patient, spec, weightLossPolicy(), domain.DoseContext{DoseType: domain.PhaseStarting})
	assert.Equal(t, domain.StatusNotMet, r.Status)
	assert.Contains(t, r.Reason, "medication list")
	assert.Contains(t, r.Reason, "lab results")
}

func TestEvaluateCVDRisk(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionCVDRisk}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseStarting}

	t.Run("established disease", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID:        "pt-1",
			Diagnoses: []domain.Diagnosis{{Description: "Coronary artery disease"}},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusMet, r.Status)
	})

	t.Run("two risk factors", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID: "pt-1",
			Diagnoses: []domain.Diagnosis{
				{Description: "Essential hypertension"},
				{Description: "Mixed dyslipidemia"},
			},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusMet, r.Status)
	})

	t.Run("single risk factor", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID:        "pt-1",
			Diagnoses: []domain.Diagnosis{{Description: "Essential hypertension"}},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusNotMet, r.Status)
	})
}

func TestEvaluate_UnknownTypeIsolated(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionType("astrology"), Critical: true}

	r := e.Evaluate(&domain.PatientSnapshot{ID: "pt-1"}, spec, weightLossPolicy(), domain.DoseContext{DoseType: domain.PhaseStarting})
	assert.Equal(t, domain.StatusNotEvaluated, r.Status)
}

func TestEvaluatePrescriberQualification(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{
		Type:                domain.CriterionPrescriberQualification,
		RequiredSpecialties: []string{"endocrinology", "obesity medicine"},
	}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseStarting}

	t.Run("matching specialty", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID:         "pt-1",
			Prescriber: &domain.Prescriber{NPI: "1234567890", Specialty: "Pediatric Endocrinology"},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusMet, r.Status)
	})

	t.Run("missing prescriber pends documentation", func(t *testing.T) {
		r := e.Evaluate(&domain.PatientSnapshot{ID: "pt-1"}, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusPendingDocumentation, r.Status)
	})

	t.Run("wrong specialty", func(t *testing.T) {
		patient := &domain.PatientSnapshot{
			ID:         "pt-1",
			Prescriber: &domain.Prescriber{Specialty: "Dermatology"},
		}
		r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
		assert.Equal(t, domain.StatusNotMet, r.Status)
	})
}

func TestEvaluateAge_BirthDatePreferred(t *testing.T) {
	e := newTestEngine(t)
	spec := domain.CriterionSpec{Type: domain.CriterionAge, MinAge: 18}
	doseCtx := domain.DoseContext{DoseType: domain.PhaseStarting}

	// Seventeen years and eleven months old; the stale Age field says 18.
	birth := progressionNow.AddDate(-18, 1, 0)
	patient := &domain.PatientSnapshot{ID: "pt-1", BirthDate: &birth, Age: 18}

	r := e.Evaluate(patient, spec, weightLossPolicy(), doseCtx)
	assert.Equal(t, domain.StatusNotMet, r.Status)
}
