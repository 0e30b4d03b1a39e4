package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

// EvaluatorFunc is the uniform contract for criterion evaluators: pure,
// deterministic, no I/O, and never panics for missing optional data (missing
// data degrades to NOT_MET or PENDING_DOCUMENTATION with a reason).
type EvaluatorFunc func(patient *domain.PatientSnapshot, spec domain.CriterionSpec, policy *domain.CoveragePolicy, doseCtx domain.DoseContext) domain.CriterionResult

// CriteriaEngine holds the canonical evaluator registry. Every criterion type
// in domain.AllCriterionTypes has exactly one registered evaluator.
type CriteriaEngine struct {
	logger      *logrus.Logger
	progression *DoseProgression
	evaluators  map[domain.CriterionType]EvaluatorFunc

	// maintenanceTolerance widens the weight-maintained percentage check by a
	// fluctuation band. Zero keeps the strict comparison.
	maintenanceTolerance float64

	now func() time.Time
}

// NewCriteriaEngine creates an engine with all evaluators registered.
func NewCriteriaEngine(logger *logrus.Logger, cfg domain.EvaluationConfig) *CriteriaEngine {
	e := &CriteriaEngine{
		logger:               logger,
		progression:          NewDoseProgression(logger, cfg.MinDoseHoldDays),
		evaluators:           make(map[domain.CriterionType]EvaluatorFunc),
		maintenanceTolerance: cfg.MaintenanceTolerancePercent,
		now:                  time.Now,
	}
	e.registerEvaluators()
	return e
}

func (e *CriteriaEngine) registerEvaluators() {
	e.evaluators[domain.CriterionAge] = e.evaluateAge
	e.evaluators[domain.CriterionBMI] = e.evaluateBMI
	e.evaluators[domain.CriterionDiagnosis] = e.evaluateDiagnosis
	e.evaluators[domain.CriterionLabValue] = e.evaluateLabValue
	e.evaluators[domain.CriterionLifestyleModification] = e.evaluateLifestyleModification
	e.evaluators[domain.CriterionPriorTherapies] = e.evaluatePriorTherapies
	e.evaluators[domain.CriterionStepTherapy] = e.evaluateStepTherapy
	e.evaluators[domain.CriterionPrescriberQualification] = e.evaluatePrescriberQualification
	e.evaluators[domain.CriterionContraindications] = e.evaluateContraindications
	e.evaluators[domain.CriterionDoseProgression] = e.evaluateDoseProgression
	e.evaluators[domain.CriterionWeightLoss] = e.evaluateWeightLoss
	e.evaluators[domain.CriterionWeightMaintained] = e.evaluateWeightMaintained
	e.evaluators[domain.CriterionEfficacy] = e.evaluateEfficacy
	e.evaluators[domain.CriterionCVDRisk] = e.evaluateCVDRisk
	e.evaluators[domain.CriterionDocumentation] = e.evaluateDocumentation

	e.logger.WithField("evaluator_count", len(e.evaluators)).Debug("Registered criterion evaluators")
}

// EvaluateAll runs every criterion applicable to the dose context's phase and
// returns the results in policy order. Per-criterion failures are isolated:
// a failing evaluator yields a NOT_EVALUATED result and the remaining
// criteria still run.
func (e *CriteriaEngine) EvaluateAll(patient *domain.PatientSnapshot, policy *domain.CoveragePolicy, doseCtx domain.DoseContext) []domain.CriterionResult {
	specs := policy.CriteriaForPhase(doseCtx.DoseType)
	results := make([]domain.CriterionResult, 0, len(specs))

	for _, spec := range specs {
		results = append(results, e.Evaluate(patient, spec, policy, doseCtx))
	}

	e.logger.WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"drug":       policy.DrugName,
		"dose_type":  doseCtx.DoseType,
		"criteria":   len(results),
		"met":        countByStatus(results, domain.StatusMet),
	}).Info("Completed criteria evaluation")

	return results
}

// Evaluate runs a single criterion. Unknown types and evaluator panics both
// degrade to NOT_EVALUATED so one malformed spec cannot cascade.
func (e *CriteriaEngine) Evaluate(patient *domain.PatientSnapshot, spec domain.CriterionSpec, policy *domain.CoveragePolicy, doseCtx domain.DoseContext) (result domain.CriterionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"criterion": spec.Type,
				"panic":     r,
			}).Warn("Criterion evaluator panicked; isolating failure")
			result = domain.CriterionResult{
				CriterionType: spec.Type,
				Status:        domain.StatusNotEvaluated,
				Critical:      spec.Critical,
				Requirement:   spec.Rule,
				Reason:        fmt.Sprintf("Criterion could not be evaluated: %v", r),
			}
		}
	}()

	evaluator, ok := e.evaluators[spec.Type]
	if !ok {
		e.logger.WithField("criterion", spec.Type).Warn("No evaluator registered for criterion type")
		return domain.CriterionResult{
			CriterionType: spec.Type,
			Status:        domain.StatusNotEvaluated,
			Critical:      spec.Critical,
			Requirement:   spec.Rule,
			Reason:        fmt.Sprintf("No evaluator registered for criterion type %q", spec.Type),
		}
	}

	// Phase gating short-circuits before any clinical logic runs.
	if !spec.AppliesAt(doseCtx.DoseType) {
		return domain.CriterionResult{
			CriterionType: spec.Type,
			Status:        domain.StatusNotApplicable,
			Critical:      spec.Critical,
			Requirement:   spec.Rule,
			Reason:        fmt.Sprintf("Not applicable at %s dose", doseCtx.DoseType),
		}
	}

	return evaluator(patient, spec, policy, doseCtx)
}

// evaluateAge checks the patient meets the policy's minimum age.
func (e *CriteriaEngine) evaluateAge(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	minAge := spec.MinAge
	if minAge <= 0 {
		minAge = DefaultMinAge
	}
	age := patient.AgeAt(e.now())

	result := domain.CriterionResult{
		CriterionType: domain.CriterionAge,
		Critical:      spec.Critical,
		Value:         fmt.Sprintf("%d", age),
		DisplayValue:  fmt.Sprintf("%d years", age),
		Requirement:   fmt.Sprintf("Age %d or older", minAge),
	}
	if age >= minAge {
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Patient age %d meets minimum %d", age, minAge)
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Patient age %d is below minimum %d", age, minAge)
	}
	return result
}

// evaluateBMI applies the two-tier BMI rule: standalone at 30, or 27 with at
// least one qualifying comorbidity. Matched comorbidities are always reported
// for audit.
func (e *CriteriaEngine) evaluateBMI(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	bmi := patient.Vitals.BMI
	matched := matchedComorbidities(patient)

	result := domain.CriterionResult{
		CriterionType:        domain.CriterionBMI,
		Critical:             spec.Critical,
		Value:                fmt.Sprintf("%.1f", bmi),
		DisplayValue:         fmt.Sprintf("BMI %.1f", bmi),
		Requirement:          fmt.Sprintf("BMI >= %.0f, or >= %.0f with a qualifying comorbidity", BMIStandaloneThreshold, BMIComorbidityThreshold),
		MatchedComorbidities: matched,
	}

	switch {
	case bmi <= 0:
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "BMI is not documented in the patient record"
		result.Recommendation = "Document a current BMI measurement"
	case bmi >= BMIStandaloneThreshold:
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("BMI %.1f meets the standalone threshold of %.0f", bmi, BMIStandaloneThreshold)
	case bmi >= BMIComorbidityThreshold && len(matched) > 0:
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("BMI %.1f with qualifying comorbidity (%s)", bmi, strings.Join(matched, ", "))
	case bmi >= BMIComorbidityThreshold:
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("BMI %.1f requires at least one qualifying comorbidity; none documented", bmi)
		result.Recommendation = "Document qualifying comorbid conditions if present"
	default:
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("BMI %.1f is below the minimum threshold of %.0f", bmi, BMIComorbidityThreshold)
	}
	return result
}

// evaluateDiagnosis checks the required diagnosis appears on the problem list.
func (e *CriteriaEngine) evaluateDiagnosis(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionDiagnosis,
		Critical:      spec.Critical,
		Requirement:   fmt.Sprintf("Documented diagnosis of %s", spec.RequiredDiagnosis),
	}
	if spec.RequiredDiagnosis == "" {
		result.Status = domain.StatusNotEvaluated
		result.Reason = "Diagnosis criterion is missing required_diagnosis"
		return result
	}
	if patient.HasDiagnosisContaining(spec.RequiredDiagnosis) {
		result.Status = domain.StatusMet
		result.DisplayValue = spec.RequiredDiagnosis
		result.Reason = fmt.Sprintf("Diagnosis %q is documented", spec.RequiredDiagnosis)
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("No documented diagnosis of %q", spec.RequiredDiagnosis)
		result.Recommendation = fmt.Sprintf("Document %s diagnosis with an ICD code", spec.RequiredDiagnosis)
	}
	return result
}

// evaluateLabValue checks the most recent named lab against the spec's bounds.
func (e *CriteriaEngine) evaluateLabValue(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionLabValue,
		Critical:      spec.Critical,
		Requirement:   spec.Rule,
	}
	if spec.LabName == "" {
		result.Status = domain.StatusNotEvaluated
		result.Reason = "Lab criterion is missing lab_name"
		return result
	}

	lab := patient.LatestLab(spec.LabName)
	if lab == nil {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = fmt.Sprintf("No %s result on file", spec.LabName)
		result.Recommendation = fmt.Sprintf("Order a %s and attach the result", spec.LabName)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", lab.Value)
	result.DisplayValue = fmt.Sprintf("%s %.2f %s", lab.Name, lab.Value, lab.Unit)

	if spec.MinLabValue != nil && lab.Value < *spec.MinLabValue {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("%s %.2f is below the required minimum %.2f", lab.Name, lab.Value, *spec.MinLabValue)
		return result
	}
	if spec.MaxLabValue != nil && lab.Value > *spec.MaxLabValue {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("%s %.2f exceeds the allowed maximum %.2f", lab.Name, lab.Value, *spec.MaxLabValue)
		return result
	}
	result.Status = domain.StatusMet
	result.Reason = fmt.Sprintf("%s %.2f is within the required range", lab.Name, lab.Value)
	return result
}

// evaluateLifestyleModification checks enrollment in a structured weight
// program.
func (e *CriteriaEngine) evaluateLifestyleModification(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionLifestyleModification,
		Critical:      spec.Critical,
		Requirement:   "Participation in a structured lifestyle modification program",
	}
	if patient.ClinicalNotes == nil {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "No clinical notes documenting lifestyle modification"
		result.Recommendation = "Document participation in a diet and exercise program"
		return result
	}
	if patient.ClinicalNotes.HasWeightProgram {
		result.Status = domain.StatusMet
		result.DisplayValue = "Enrolled in weight program"
		result.Reason = "Patient participates in a structured weight management program"
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = "No documented participation in a lifestyle modification program"
		result.Recommendation = "Enroll patient in a structured diet and exercise program"
	}
	return result
}

// evaluatePriorTherapies counts documented trials of the listed alternative
// medications. Some but insufficient trials is a partial result.
func (e *CriteriaEngine) evaluatePriorTherapies(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	minTrials := spec.MinTrials
	if minTrials <= 0 {
		minTrials = DefaultMinPriorTrials
	}
	candidates := append(append([]string{}, spec.RequiredMedications...), spec.PreferredAlternatives...)
	tried := matchMedications(patient.MedicationNames(), candidates)

	result := domain.CriterionResult{
		CriterionType: domain.CriterionPriorTherapies,
		Critical:      spec.Critical,
		Value:         fmt.Sprintf("%d", len(tried)),
		DisplayValue:  fmt.Sprintf("%d prior therapies documented", len(tried)),
		Requirement:   fmt.Sprintf("At least %d documented trial(s) of alternative therapy", minTrials),
	}
	switch {
	case len(tried) >= minTrials:
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Documented trials of %s satisfy the prior therapy requirement", strings.Join(tried, ", "))
	case len(tried) > 0:
		result.Status = domain.StatusPartiallyMet
		result.Reason = fmt.Sprintf("%d of %d required prior therapies documented (%s)", len(tried), minTrials, strings.Join(tried, ", "))
		result.Recommendation = "Document additional prior therapy trials"
	default:
		result.Status = domain.StatusNotMet
		result.Reason = "No documented trials of required alternative therapies"
		result.Recommendation = fmt.Sprintf("Trial one of: %s", strings.Join(candidates, ", "))
	}
	return result
}

// evaluateStepTherapy checks the patient tried the required medication(s) or
// one of the preferred alternatives, matched case-insensitively by substring
// across the combined current and historical medication list.
func (e *CriteriaEngine) evaluateStepTherapy(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionStepTherapy,
		Critical:      spec.Critical,
		Requirement:   spec.Rule,
	}

	names := patient.MedicationNames()
	requiredMatched := matchMedications(names, spec.RequiredMedications)
	alternativeMatched := matchMedications(names, spec.PreferredAlternatives)

	if len(spec.RequiredMedications) > 0 && len(requiredMatched) == len(spec.RequiredMedications) {
		result.Status = domain.StatusMet
		result.DisplayValue = strings.Join(requiredMatched, ", ")
		result.Reason = fmt.Sprintf("Required step therapy documented: %s", strings.Join(requiredMatched, ", "))
		return result
	}
	if len(alternativeMatched) > 0 {
		result.Status = domain.StatusMet
		result.DisplayValue = strings.Join(alternativeMatched, ", ")
		result.Reason = fmt.Sprintf("Preferred alternative documented: %s", strings.Join(alternativeMatched, ", "))
		return result
	}

	result.Status = domain.StatusNotMet
	wanted := append(append([]string{}, spec.RequiredMedications...), spec.PreferredAlternatives...)
	result.Reason = fmt.Sprintf("No documented trial of %s", strings.Join(wanted, " or "))
	result.Recommendation = fmt.Sprintf("Trial %s before requesting coverage", strings.Join(wanted, " or "))
	return result
}

// evaluatePrescriberQualification checks the ordering clinician's specialty.
func (e *CriteriaEngine) evaluatePrescriberQualification(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionPrescriberQualification,
		Critical:      spec.Critical,
		Requirement:   fmt.Sprintf("Prescriber specialty: %s", strings.Join(spec.RequiredSpecialties, " or ")),
	}
	if len(spec.RequiredSpecialties) == 0 {
		result.Status = domain.StatusMet
		result.Reason = "No prescriber specialty restriction"
		return result
	}
	if patient.Prescriber == nil || patient.Prescriber.Specialty == "" {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "Prescriber specialty is not documented"
		result.Recommendation = "Include prescriber NPI and specialty on the request"
		return result
	}
	specialty := strings.ToLower(patient.Prescriber.Specialty)
	for _, required := range spec.RequiredSpecialties {
		if strings.Contains(specialty, strings.ToLower(required)) {
			result.Status = domain.StatusMet
			result.DisplayValue = patient.Prescriber.Specialty
			result.Reason = fmt.Sprintf("Prescriber specialty %q satisfies the requirement", patient.Prescriber.Specialty)
			return result
		}
	}
	result.Status = domain.StatusNotMet
	result.DisplayValue = patient.Prescriber.Specialty
	result.Reason = fmt.Sprintf("Prescriber specialty %q is not among: %s", patient.Prescriber.Specialty, strings.Join(spec.RequiredSpecialties, ", "))
	return result
}

// evaluateContraindications denies, always critically, when any
// contraindication term appears in the diagnosis text.
func (e *CriteriaEngine) evaluateContraindications(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionContraindications,
		Critical:      true, // contraindications are critical regardless of spec
		Requirement:   "No contraindicated conditions on the problem list",
	}
	var found []string
	for _, term := range contraindicationTerms {
		if patient.HasDiagnosisContaining(term) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		result.Status = domain.StatusNotMet
		result.DisplayValue = strings.Join(found, ", ")
		result.Reason = fmt.Sprintf("Contraindicated condition(s) documented: %s", strings.Join(found, ", "))
		return result
	}
	result.Status = domain.StatusMet
	result.Reason = "No contraindicated conditions documented"
	return result
}

// evaluateDoseProgression delegates to the dose-progression state machine and
// attaches its diagnostics to the result.
func (e *CriteriaEngine) evaluateDoseProgression(patient *domain.PatientSnapshot, spec domain.CriterionSpec, policy *domain.CoveragePolicy, doseCtx domain.DoseContext) domain.CriterionResult {
	verdict := e.progression.Evaluate(patient, policy, doseCtx.Dose)
	return domain.CriterionResult{
		CriterionType:         domain.CriterionDoseProgression,
		Status:                verdict.Status,
		Critical:              spec.Critical || verdict.Critical,
		DisplayValue:          verdict.DisplayValue,
		Requirement:           "Requested dose follows the policy dose schedule",
		Reason:                verdict.Reason,
		CurrentDose:           verdict.CurrentDose,
		RequiredNextDose:      verdict.RequiredNextDose,
		DaysOnCurrentDose:     verdict.DaysOnCurrentDose,
		NeedsReauthorization:  verdict.NeedsReauthorization,
		RequiresJustification: verdict.RequiresJustification,
	}
}

// evaluateWeightLoss checks initial weight-loss response. Not applicable at a
// starting dose, where no response exists yet.
func (e *CriteriaEngine) evaluateWeightLoss(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, doseCtx domain.DoseContext) domain.CriterionResult {
	minPct := spec.MinPercentage
	if minPct <= 0 {
		minPct = DefaultMinWeightLossPercent
	}
	result := domain.CriterionResult{
		CriterionType: domain.CriterionWeightLoss,
		Critical:      spec.Critical,
		Requirement:   fmt.Sprintf("At least %.0f%% weight loss from baseline", minPct),
	}
	if doseCtx.IsStartingDose {
		result.Status = domain.StatusNotApplicable
		result.Reason = "Weight-loss response does not apply at the starting dose"
		return result
	}
	if patient.ClinicalNotes == nil {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "Weight-loss response is not documented"
		result.Recommendation = "Document baseline and current weight"
		return result
	}
	pct := patient.ClinicalNotes.InitialWeightLossPercentage
	result.Value = fmt.Sprintf("%.1f", pct)
	result.DisplayValue = fmt.Sprintf("%.1f%% weight loss", pct)
	if pct >= minPct {
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Initial weight loss of %.1f%% meets the %.0f%% requirement", pct, minPct)
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Initial weight loss of %.1f%% is below the %.0f%% requirement", pct, minPct)
	}
	return result
}

// evaluateWeightMaintained checks sustained weight loss. Both legs must hold
// independently: current percentage at threshold and maintenance duration at
// the minimum. Peak loss alone does not satisfy maintenance.
func (e *CriteriaEngine) evaluateWeightMaintained(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, doseCtx domain.DoseContext) domain.CriterionResult {
	minPct := spec.MinPercentage
	if minPct <= 0 {
		minPct = DefaultMinWeightLossPercent
	}
	minMonths := spec.MinMonths
	if minMonths <= 0 {
		minMonths = DefaultMinMaintenanceMonths
	}
	result := domain.CriterionResult{
		CriterionType: domain.CriterionWeightMaintained,
		Critical:      spec.Critical,
		Requirement:   fmt.Sprintf("Maintain %.0f%% weight loss for at least %d months", minPct, minMonths),
	}
	if doseCtx.IsStartingDose {
		result.Status = domain.StatusNotApplicable
		result.Reason = "Weight maintenance does not apply at the starting dose"
		return result
	}
	if patient.ClinicalNotes == nil {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "Weight maintenance is not documented"
		result.Recommendation = "Document current weight and maintenance duration"
		return result
	}

	notes := patient.ClinicalNotes
	pctOK := notes.CurrentWeightLossPercentage >= minPct-e.maintenanceTolerance
	monthsOK := notes.WeightMaintenanceMonths >= minMonths

	result.Value = fmt.Sprintf("%.1f", notes.CurrentWeightLossPercentage)
	result.DisplayValue = fmt.Sprintf("%.1f%% maintained for %d months", notes.CurrentWeightLossPercentage, notes.WeightMaintenanceMonths)

	switch {
	case pctOK && monthsOK:
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Weight loss of %.1f%% maintained for %d months", notes.CurrentWeightLossPercentage, notes.WeightMaintenanceMonths)
	case !monthsOK && !pctOK:
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Current loss %.1f%% is below %.0f%% and maintenance duration %d months is below %d", notes.CurrentWeightLossPercentage, minPct, notes.WeightMaintenanceMonths, minMonths)
	case !monthsOK:
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Maintenance duration %d months is below the required %d months", notes.WeightMaintenanceMonths, minMonths)
	default:
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Current weight loss %.1f%% has fallen below the %.0f%% threshold", notes.CurrentWeightLossPercentage, minPct)
	}
	return result
}

// evaluateEfficacy checks sustained therapeutic response on the maintenance
// dose.
func (e *CriteriaEngine) evaluateEfficacy(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, doseCtx domain.DoseContext) domain.CriterionResult {
	minPct := spec.MinPercentage
	if minPct <= 0 {
		minPct = DefaultMinWeightLossPercent
	}
	result := domain.CriterionResult{
		CriterionType: domain.CriterionEfficacy,
		Critical:      spec.Critical,
		Requirement:   fmt.Sprintf("Sustained %.0f%% weight loss on maintenance therapy", minPct),
	}
	if !doseCtx.IsMaintenanceDose {
		result.Status = domain.StatusNotApplicable
		result.Reason = "Efficacy review applies only at maintenance doses"
		return result
	}
	if patient.ClinicalNotes == nil {
		result.Status = domain.StatusPendingDocumentation
		result.Reason = "Therapeutic response is not documented"
		result.Recommendation = "Document current weight-loss response"
		return result
	}
	pct := patient.ClinicalNotes.CurrentWeightLossPercentage
	result.Value = fmt.Sprintf("%.1f", pct)
	result.DisplayValue = fmt.Sprintf("%.1f%% sustained loss", pct)
	if pct >= minPct {
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Sustained weight loss of %.1f%% demonstrates continued efficacy", pct)
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Sustained loss %.1f%% is below the %.0f%% efficacy threshold", pct, minPct)
		result.Recommendation = "Reassess therapy; consider dose adjustment or alternatives"
	}
	return result
}

// evaluateCVDRisk checks for established cardiovascular disease or an
// accumulation of risk factors.
func (e *CriteriaEngine) evaluateCVDRisk(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	result := domain.CriterionResult{
		CriterionType: domain.CriterionCVDRisk,
		Critical:      spec.Critical,
		Requirement:   "Established cardiovascular disease or two or more risk factors",
	}
	if patient.HasDiagnosisContaining("cardiovascular disease") ||
		patient.HasDiagnosisContaining("myocardial infarction") ||
		patient.HasDiagnosisContaining("coronary artery disease") ||
		patient.HasDiagnosisContaining("stroke") {
		result.Status = domain.StatusMet
		result.DisplayValue = "Established CVD"
		result.Reason = "Established cardiovascular disease is documented"
		return result
	}
	var factors []string
	for _, f := range cvdRiskFactors {
		if patient.HasDiagnosisContaining(f) {
			factors = append(factors, f)
		}
	}
	result.Value = fmt.Sprintf("%d", len(factors))
	result.DisplayValue = fmt.Sprintf("%d risk factors", len(factors))
	if len(factors) >= 2 {
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Cardiovascular risk factors documented: %s", strings.Join(factors, ", "))
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Only %d cardiovascular risk factor(s) documented; two required without established CVD", len(factors))
	}
	return result
}

// evaluateDocumentation scores chart completeness across five elements and
// itemizes what is missing.
func (e *CriteriaEngine) evaluateDocumentation(patient *domain.PatientSnapshot, spec domain.CriterionSpec, _ *domain.CoveragePolicy, _ domain.DoseContext) domain.CriterionResult {
	type item struct {
		name    string
		present bool
	}
	items := []item{
		{"clinical notes", patient.ClinicalNotes != nil},
		{"medication list", len(patient.Medications) > 0},
		{"diagnosis codes", len(patient.Diagnoses) > 0},
		{"lab results", len(patient.Labs) > 0},
		{"therapy history", len(patient.TherapyHistory) > 0},
	}

	present := 0
	var missing []string
	for _, it := range items {
		if it.present {
			present++
		} else {
			missing = append(missing, it.name)
		}
	}

	result := domain.CriterionResult{
		CriterionType: domain.CriterionDocumentation,
		Critical:      spec.Critical,
		Value:         fmt.Sprintf("%d", present),
		DisplayValue:  fmt.Sprintf("%d of %d chart elements present", present, len(items)),
		Requirement:   fmt.Sprintf("At least %d of %d chart elements documented", DocumentationRequiredItems, len(items)),
	}
	if present >= DocumentationRequiredItems {
		result.Status = domain.StatusMet
		result.Reason = fmt.Sprintf("Chart documentation is sufficient (%d of %d elements)", present, len(items))
	} else {
		result.Status = domain.StatusNotMet
		result.Reason = fmt.Sprintf("Insufficient documentation; missing: %s", strings.Join(missing, ", "))
		result.Recommendation = "Attach the missing chart elements before submission"
	}
	return result
}

// matchedComorbidities returns the qualifying comorbidities present on the
// patient's problem list.
func matchedComorbidities(patient *domain.PatientSnapshot) []string {
	var matched []string
	for _, term := range qualifyingComorbidities {
		if patient.HasDiagnosisContaining(term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// matchMedications returns the candidate names found in the medication list,
// matched case-insensitively by substring in either direction.
func matchMedications(medications, candidates []string) []string {
	var matched []string
	for _, candidate := range candidates {
		needle := strings.ToLower(candidate)
		for _, med := range medications {
			hay := strings.ToLower(med)
			if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
				matched = append(matched, candidate)
				break
			}
		}
	}
	return matched
}

func countByStatus(results []domain.CriterionResult, status domain.CriterionStatus) int {
	count := 0
	for _, r := range results {
		if r.Status == status {
			count++
		}
	}
	return count
}
