// Package policy resolves payer coverage policies for PA evaluation. Policies
// come from a built-in table, optionally overlaid by an externally authored
// SQLite policy database, and the resolver layers dual-indication overrides
// and payer exclusions on top of the raw lookups.
package policy

import (
	"strings"

	"github.com/pa-evaluation-engine/internal/domain"
)

func f64(v float64) *float64 { return &v }

// glp1WeeklySchedule is the semaglutide-style weekly titration ladder.
var glp1WeeklySchedule = []domain.DoseScheduleEntry{
	{Value: "0.25 mg", Phase: domain.PhaseStarting, DurationWeeks: 4},
	{Value: "0.5 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "1 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "1.7 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "2.4 mg", Phase: domain.PhaseMaintenance},
}

// tirzepatideSchedule is the tirzepatide-style ladder.
var tirzepatideSchedule = []domain.DoseScheduleEntry{
	{Value: "2.5 mg", Phase: domain.PhaseStarting, DurationWeeks: 4},
	{Value: "5 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "7.5 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "10 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
	{Value: "12.5 mg", Phase: domain.PhaseMaintenance},
	{Value: "15 mg", Phase: domain.PhaseMaintenance},
}

// diabetesCriteria is the standard criteria set for GLP-1 agents prescribed
// for type 2 diabetes.
func diabetesCriteria() []domain.CriterionSpec {
	return []domain.CriterionSpec{
		{Type: domain.CriterionAge, Rule: "Patient must be 18 or older", Critical: true, MinAge: 18},
		{Type: domain.CriterionDiagnosis, Rule: "Documented type 2 diabetes diagnosis", Critical: true, RequiredDiagnosis: "type 2 diabetes"},
		{Type: domain.CriterionLabValue, Rule: "HbA1c of 6.5 or greater", LabName: "HbA1c", MinLabValue: f64(6.5)},
		{Type: domain.CriterionStepTherapy, Rule: "Trial of metformin unless contraindicated", RequiredMedications: []string{"metformin"}, PreferredAlternatives: []string{"sulfonylurea", "glipizide"}},
		{Type: domain.CriterionContraindications, Rule: "No contraindicated conditions", Critical: true},
		{Type: domain.CriterionDoseProgression, Rule: "Dose follows the titration schedule", Critical: true},
		{Type: domain.CriterionDocumentation, Rule: "Chart documentation sufficient for submission"},
	}
}

// weightManagementCriteria is the standard criteria set for GLP-1 agents
// prescribed for chronic weight management. The same set is merged into a
// diabetes-labeled policy when the dual-indication override applies.
func weightManagementCriteria() []domain.CriterionSpec {
	return []domain.CriterionSpec{
		{Type: domain.CriterionAge, Rule: "Patient must be 18 or older", Critical: true, MinAge: 18},
		{Type: domain.CriterionBMI, Rule: "BMI 30+, or 27+ with a qualifying comorbidity", Critical: true},
		{Type: domain.CriterionLifestyleModification, Rule: "Participation in a structured lifestyle program"},
		{Type: domain.CriterionStepTherapy, Rule: "Trial of a preferred weight-loss agent", PreferredAlternatives: []string{"phentermine", "orlistat", "naltrexone-bupropion"}},
		{Type: domain.CriterionContraindications, Rule: "No contraindicated conditions", Critical: true},
		{Type: domain.CriterionDoseProgression, Rule: "Dose follows the titration schedule", Critical: true},
		{Type: domain.CriterionWeightLoss, Rule: "At least 5% weight loss from baseline", MinPercentage: 5,
			AppliesTo: []domain.DosePhase{domain.PhaseTitration, domain.PhaseMaintenance}},
		{Type: domain.CriterionWeightMaintained, Rule: "Weight loss maintained for 3 months", MinPercentage: 5, MinMonths: 3,
			AppliesTo: []domain.DosePhase{domain.PhaseMaintenance}},
		{Type: domain.CriterionEfficacy, Rule: "Sustained therapeutic response on maintenance dose",
			AppliesTo: []domain.DosePhase{domain.PhaseMaintenance}},
		{Type: domain.CriterionDocumentation, Rule: "Chart documentation sufficient for submission"},
	}
}

// builtinPolicies is the seed coverage table. An external SQLite policy store,
// when configured, takes precedence over entries here.
func builtinPolicies() []*domain.CoveragePolicy {
	return []*domain.CoveragePolicy{
		{
			Insurer: "BlueCross BlueShield", DrugName: "Ozempic", Indication: domain.IndicationDiabetes,
			Covered: true, Tier: 3, CopayAmount: 50, RequiresPA: true,
			DoseSchedule: semaglutideDiabetesSchedule(),
			PACriteria:   diabetesCriteria(),
		},
		{
			Insurer: "BlueCross BlueShield", DrugName: "Wegovy", Indication: domain.IndicationWeightLoss,
			Covered: true, Tier: 3, CopayAmount: 75, RequiresPA: true,
			DoseSchedule: glp1WeeklySchedule,
			PACriteria:   weightManagementCriteria(),
		},
		{
			Insurer: "BlueCross BlueShield", DrugName: "Mounjaro", Indication: domain.IndicationDiabetes,
			Covered: true, Tier: 3, CopayAmount: 60, RequiresPA: true,
			DoseSchedule: tirzepatideSchedule,
			PACriteria:   diabetesCriteria(),
		},
		{
			Insurer: "UnitedHealthcare", DrugName: "Ozempic", Indication: domain.IndicationDiabetes,
			Covered: true, Tier: 2, CopayAmount: 40, RequiresPA: true,
			DoseSchedule: semaglutideDiabetesSchedule(),
			PACriteria:   diabetesCriteria(),
		},
		{
			Insurer: "UnitedHealthcare", DrugName: "Wegovy", Indication: domain.IndicationWeightLoss,
			Covered: true, Tier: 3, CopayAmount: 100, RequiresPA: true,
			DoseSchedule: glp1WeeklySchedule,
			PACriteria: append(weightManagementCriteria(), domain.CriterionSpec{
				Type: domain.CriterionPrescriberQualification,
				Rule: "Prescribed by or in consultation with a specialist",
				RequiredSpecialties: []string{"endocrinology", "bariatric", "obesity medicine"},
			}),
		},
		{
			Insurer: "UnitedHealthcare", DrugName: "Zepbound", Indication: domain.IndicationWeightLoss,
			Covered: true, Tier: 3, CopayAmount: 100, RequiresPA: true,
			DoseSchedule: tirzepatideSchedule,
			PACriteria:   weightManagementCriteria(),
		},
		// Medicare Part D covers GLP-1s for diabetes but is statutorily barred
		// from covering weight-loss drugs; the resolver enforces the exclusion.
		{
			Insurer: "Medicare", DrugName: "Ozempic", Indication: domain.IndicationDiabetes,
			Covered: true, Tier: 3, CopayAmount: 47, RequiresPA: true,
			DoseSchedule: semaglutideDiabetesSchedule(),
			PACriteria:   diabetesCriteria(),
		},
	}
}

// semaglutideDiabetesSchedule is the Ozempic-style ladder, which tops out at
// 2 mg rather than the weight-management 2.4 mg.
func semaglutideDiabetesSchedule() []domain.DoseScheduleEntry {
	return []domain.DoseScheduleEntry{
		{Value: "0.25 mg", Phase: domain.PhaseStarting, DurationWeeks: 4},
		{Value: "0.5 mg", Phase: domain.PhaseTitration, DurationWeeks: 4},
		{Value: "1 mg", Phase: domain.PhaseMaintenance},
		{Value: "2 mg", Phase: domain.PhaseMaintenance},
	}
}

// weightLossExcludedInsurers are payer programs that exclude weight-loss
// drugs from coverage regardless of clinical criteria.
var weightLossExcludedInsurers = map[string]bool{
	"medicare": true,
	"medicaid": true,
	"tricare":  true,
}

func insurerExcludesWeightLoss(insurer string) bool {
	return weightLossExcludedInsurers[strings.ToLower(strings.TrimSpace(insurer))]
}
