package domain

import (
	"fmt"
	"strings"
	"time"
)

// PatientSnapshot is the read-only clinical record a PA evaluation runs
// against. It is assembled by an upstream EHR/FHIR fetch layer; the
// evaluation core never mutates it.
type PatientSnapshot struct {
	ID        string     `json:"id" validate:"required"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Age       int        `json:"age,omitempty"`

	Vitals         Vitals           `json:"vitals"`
	Diagnoses      []Diagnosis      `json:"diagnoses,omitempty"`
	Labs           []LabResult      `json:"labs,omitempty"`
	Medications    []Medication     `json:"medications,omitempty"`
	TherapyHistory []TherapyEpisode `json:"therapy_history,omitempty"`
	ClinicalNotes  *ClinicalNotes   `json:"clinical_notes,omitempty"`
	Prescriber     *Prescriber      `json:"prescriber,omitempty"`
}

// Vitals holds the most recent vital measurements.
type Vitals struct {
	BMI      float64 `json:"bmi,omitempty"`
	WeightKG float64 `json:"weight_kg,omitempty"`
	HeightCM float64 `json:"height_cm,omitempty"`
}

// Diagnosis is a single coded condition on the patient's problem list.
type Diagnosis struct {
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description"`
	DiagnosedAt *time.Time `json:"diagnosed_at,omitempty"`
}

// LabResult is a named lab value with collection metadata.
type LabResult struct {
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Medication is a current or historical medication order.
type Medication struct {
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"` // active, completed, stopped
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// TherapyEpisode records one continuous course of a specific drug. Episodes
// for the same drug are ordered and non-overlapping.
type TherapyEpisode struct {
	DrugName         string     `json:"drug_name"`
	Status           string     `json:"status"` // active, completed, discontinued
	DoseSteps        []DoseStep `json:"dose_steps"`
	CurrentDose      string     `json:"current_dose,omitempty"`
	PAExpirationDate *time.Time `json:"pa_expiration_date,omitempty"`
}

// DoseStep is one dose level within a therapy episode.
type DoseStep struct {
	Dose      string     `json:"dose"`
	Phase     DosePhase  `json:"phase"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// ClinicalNotes carries the chart-abstracted weight-management data points
// several weight-loss criteria depend on.
type ClinicalNotes struct {
	InitialWeightLossPercentage float64 `json:"initial_weight_loss_percentage"`
	CurrentWeightLossPercentage float64 `json:"current_weight_loss_percentage"`
	WeightMaintenanceMonths     int     `json:"weight_maintenance_months"`
	HasWeightProgram            bool    `json:"has_weight_program"`
	MonthsOnMaintenanceDose     int     `json:"months_on_maintenance_dose"`
}

// Prescriber identifies the ordering clinician for qualification checks.
type Prescriber struct {
	NPI       string `json:"npi,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

// AgeAt returns the patient's age in whole years at the given instant,
// preferring birth date over the pre-computed Age field.
func (p *PatientSnapshot) AgeAt(now time.Time) int {
	if p.BirthDate == nil {
		return p.Age
	}
	years := now.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// ActiveEpisode returns the patient's active therapy episode for the given
// drug, or nil if the patient is drug naive or only has closed episodes.
// Drug matching is case-insensitive.
func (p *PatientSnapshot) ActiveEpisode(drugName string) *TherapyEpisode {
	for i := range p.TherapyHistory {
		ep := &p.TherapyHistory[i]
		if strings.EqualFold(ep.DrugName, drugName) && strings.EqualFold(ep.Status, "active") {
			return ep
		}
	}
	return nil
}

// MedicationNames returns the combined current and historical medication
// list, including drugs from therapy history episodes. Used for step-therapy
// and prior-therapy matching.
func (p *PatientSnapshot) MedicationNames() []string {
	names := make([]string, 0, len(p.Medications)+len(p.TherapyHistory))
	for _, m := range p.Medications {
		names = append(names, m.Name)
	}
	for _, ep := range p.TherapyHistory {
		names = append(names, ep.DrugName)
	}
	return names
}

// HasDiagnosisContaining reports whether any diagnosis description or code
// contains the given term, case-insensitively.
func (p *PatientSnapshot) HasDiagnosisContaining(term string) bool {
	needle := strings.ToLower(term)
	for _, d := range p.Diagnoses {
		if strings.Contains(strings.ToLower(d.Description), needle) ||
			strings.Contains(strings.ToLower(d.Code), needle) {
			return true
		}
	}
	return false
}

// LatestLab returns the most recently collected lab with the given name, or
// nil if none exists. Name matching is case-insensitive.
func (p *PatientSnapshot) LatestLab(name string) *LabResult {
	var latest *LabResult
	for i := range p.Labs {
		lab := &p.Labs[i]
		if !strings.EqualFold(lab.Name, name) {
			continue
		}
		if latest == nil || lab.CollectedAt.After(latest.CollectedAt) {
			latest = lab
		}
	}
	return latest
}

// CurrentStep returns the episode's latest open dose step, or nil when the
// episode has no steps.
func (e *TherapyEpisode) CurrentStep() *DoseStep {
	var current *DoseStep
	for i := range e.DoseSteps {
		step := &e.DoseSteps[i]
		if current == nil || step.StartDate.After(current.StartDate) {
			current = step
		}
	}
	return current
}

// DoseScheduleEntry is one rung of a drug's ordered dose ladder.
type DoseScheduleEntry struct {
	Value         string    `json:"value"`
	Phase         DosePhase `json:"phase"`
	DurationWeeks int       `json:"duration_weeks,omitempty"`
}

// CoveragePolicy describes a payer's PA requirements for one drug, optionally
// specialized by indication. Policies are externally authored, immutable data.
type CoveragePolicy struct {
	Insurer    string     `json:"insurer"`
	DrugName   string     `json:"drug_name"`
	Indication Indication `json:"indication,omitempty"`

	// Benefit metadata is passed through to callers and ignored by the
	// evaluation logic.
	Covered     bool    `json:"covered"`
	Tier        int     `json:"tier,omitempty"`
	CopayAmount float64 `json:"copay_amount,omitempty"`
	RequiresPA  bool    `json:"requires_pa"`

	DoseSchedule    []DoseScheduleEntry           `json:"dose_schedule,omitempty"`
	PACriteria      []CriterionSpec               `json:"pa_criteria,omitempty"`
	EvaluationRules map[DosePhase][]CriterionType `json:"evaluation_rules,omitempty"`
}

// Validate checks the structural invariants of a policy: dose phases must be
// monotonic (starting, then titration, then maintenance) and every criterion
// type referenced anywhere must have a registered evaluator.
func (cp *CoveragePolicy) Validate() error {
	if cp.Insurer == "" {
		return fmt.Errorf("policy validation: insurer is required")
	}
	if cp.DrugName == "" {
		return fmt.Errorf("policy validation: drug name is required")
	}

	phaseRank := map[DosePhase]int{PhaseStarting: 0, PhaseTitration: 1, PhaseMaintenance: 2}
	lastRank := -1
	for _, entry := range cp.DoseSchedule {
		rank, ok := phaseRank[entry.Phase]
		if !ok {
			return fmt.Errorf("policy validation: %w: %q", ErrInvalidPhase, entry.Phase)
		}
		if rank < lastRank {
			return fmt.Errorf("policy validation: dose schedule phases not monotonic at %q", entry.Value)
		}
		lastRank = rank
	}

	for _, spec := range cp.PACriteria {
		if !spec.Type.IsValid() {
			return fmt.Errorf("policy validation: %w: %q", ErrUnknownCriterion, spec.Type)
		}
	}
	for phase, types := range cp.EvaluationRules {
		if !phase.IsValid() {
			return fmt.Errorf("policy validation: %w: %q", ErrInvalidPhase, phase)
		}
		for _, ct := range types {
			if !ct.IsValid() {
				return fmt.Errorf("policy validation: %w: %q", ErrUnknownCriterion, ct)
			}
		}
	}

	return nil
}

// Clone returns a deep copy. Dual-indication overriding operates on clones so
// the base policy table stays immutable.
func (cp *CoveragePolicy) Clone() *CoveragePolicy {
	out := *cp
	out.DoseSchedule = append([]DoseScheduleEntry(nil), cp.DoseSchedule...)
	out.PACriteria = make([]CriterionSpec, len(cp.PACriteria))
	for i, spec := range cp.PACriteria {
		out.PACriteria[i] = spec.Clone()
	}
	if cp.EvaluationRules != nil {
		out.EvaluationRules = make(map[DosePhase][]CriterionType, len(cp.EvaluationRules))
		for phase, types := range cp.EvaluationRules {
			out.EvaluationRules[phase] = append([]CriterionType(nil), types...)
		}
	}
	return &out
}

// ScheduleIndex returns the position of the dose in the schedule, or -1 when
// the dose is not a schedule entry. Matching is exact on the normalized value.
func (cp *CoveragePolicy) ScheduleIndex(dose string) int {
	for i, entry := range cp.DoseSchedule {
		if strings.EqualFold(entry.Value, dose) {
			return i
		}
	}
	return -1
}

// StartingDose returns the schedule's starting-phase dose, or empty when the
// schedule has none.
func (cp *CoveragePolicy) StartingDose() string {
	for _, entry := range cp.DoseSchedule {
		if entry.Phase == PhaseStarting {
			return entry.Value
		}
	}
	return ""
}

// MaxDose returns the last schedule entry, or empty for an empty schedule.
func (cp *CoveragePolicy) MaxDose() string {
	if len(cp.DoseSchedule) == 0 {
		return ""
	}
	return cp.DoseSchedule[len(cp.DoseSchedule)-1].Value
}

// CriteriaForPhase selects the criterion specs applicable to the given phase.
// When the policy carries evaluationRules, only listed types are returned;
// otherwise every criterion applies.
func (cp *CoveragePolicy) CriteriaForPhase(phase DosePhase) []CriterionSpec {
	if len(cp.EvaluationRules) == 0 {
		return cp.PACriteria
	}
	allowed, ok := cp.EvaluationRules[phase]
	if !ok {
		return cp.PACriteria
	}
	allowedSet := make(map[CriterionType]bool, len(allowed))
	for _, ct := range allowed {
		allowedSet[ct] = true
	}
	selected := make([]CriterionSpec, 0, len(cp.PACriteria))
	for _, spec := range cp.PACriteria {
		if allowedSet[spec.Type] {
			selected = append(selected, spec)
		}
	}
	return selected
}

// CriterionSpec is one externally authored PA requirement. Threshold fields
// are interpreted per criterion type; unused fields stay zero.
type CriterionSpec struct {
	Type     CriterionType `json:"type" validate:"required"`
	Rule     string        `json:"rule,omitempty"` // human-readable rule text
	Critical bool          `json:"critical"`

	MinAge           int      `json:"min_age,omitempty"`
	MinPercentage    float64  `json:"min_percentage,omitempty"`
	MinMonths        int      `json:"min_months,omitempty"`
	MinTrials        int      `json:"min_trials,omitempty"`
	MinDurationWeeks int      `json:"min_duration_weeks,omitempty"`
	MinLabValue      *float64 `json:"min_lab_value,omitempty"`
	MaxLabValue      *float64 `json:"max_lab_value,omitempty"`
	LabName          string   `json:"lab_name,omitempty"`

	RequiredDiagnosis     string   `json:"required_diagnosis,omitempty"`
	RequiredMedications   []string `json:"required_medications,omitempty"`
	PreferredAlternatives []string `json:"preferred_alternatives,omitempty"`
	RequiredSpecialties   []string `json:"required_specialties,omitempty"`

	// AppliesTo restricts the criterion to the listed dose phases. Empty
	// means the criterion applies at every phase.
	AppliesTo []DosePhase `json:"applies_to,omitempty"`
}

// Clone returns a deep copy of the spec.
func (cs CriterionSpec) Clone() CriterionSpec {
	out := cs
	out.RequiredMedications = append([]string(nil), cs.RequiredMedications...)
	out.PreferredAlternatives = append([]string(nil), cs.PreferredAlternatives...)
	out.RequiredSpecialties = append([]string(nil), cs.RequiredSpecialties...)
	out.AppliesTo = append([]DosePhase(nil), cs.AppliesTo...)
	if cs.MinLabValue != nil {
		v := *cs.MinLabValue
		out.MinLabValue = &v
	}
	if cs.MaxLabValue != nil {
		v := *cs.MaxLabValue
		out.MaxLabValue = &v
	}
	return out
}

// AppliesAt reports whether the criterion applies at the given dose phase.
func (cs CriterionSpec) AppliesAt(phase DosePhase) bool {
	if len(cs.AppliesTo) == 0 {
		return true
	}
	for _, p := range cs.AppliesTo {
		if p == phase {
			return true
		}
	}
	return false
}

// DoseContext is the per-evaluation view of the requested dose, resolved once
// from the policy's dose schedule.
type DoseContext struct {
	Dose              string    `json:"dose"`
	DoseType          DosePhase `json:"dose_type"`
	IsStartingDose    bool      `json:"is_starting_dose"`
	IsTitrationDose   bool      `json:"is_titration_dose"`
	IsMaintenanceDose bool      `json:"is_maintenance_dose"`
	DurationWeeks     int       `json:"duration_weeks,omitempty"`
	ScheduleIndex     int       `json:"schedule_index"` // -1 when off schedule
}

// CriterionResult is the immutable outcome of evaluating one criterion.
// A fresh value is constructed per evaluation; results are never patched.
type CriterionResult struct {
	CriterionType CriterionType   `json:"criterion_type"`
	Status        CriterionStatus `json:"status"`
	Critical      bool            `json:"critical"`
	Value         string          `json:"value,omitempty"`
	DisplayValue  string          `json:"display_value,omitempty"`
	Requirement   string          `json:"requirement,omitempty"`
	Reason        string          `json:"reason"`

	// Confidence is an optional extension point for staleness-aware scoring;
	// zero means the evaluator did not assess confidence.
	Confidence     float64 `json:"confidence,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`

	// Dose-progression diagnostics, populated only by the doseProgression
	// evaluator.
	CurrentDose           string `json:"current_dose,omitempty"`
	RequiredNextDose      string `json:"required_next_dose,omitempty"`
	DaysOnCurrentDose     int    `json:"days_on_current_dose,omitempty"`
	NeedsReauthorization  bool   `json:"needs_reauthorization,omitempty"`
	RequiresJustification bool   `json:"requires_justification,omitempty"`

	// Comorbidity audit trail for the BMI criterion.
	MatchedComorbidities []string `json:"matched_comorbidities,omitempty"`
}

// ApprovalLikelihood is the aggregate score block for an evaluation.
type ApprovalLikelihood struct {
	Score      int           `json:"score"` // 0-100
	Confidence ConfidenceTag `json:"confidence"`
	ColorClass string        `json:"color_class"` // presentation hint
	Reason     string        `json:"reason"`
	Action     string        `json:"action"`
}

// Recommendation is one prioritized remediation step derived from unmet or
// partial criteria.
type Recommendation struct {
	Priority      RecommendationPriority `json:"priority"`
	CriterionType CriterionType          `json:"criterion_type,omitempty"`
	Message       string                 `json:"message"`
	Action        string                 `json:"action,omitempty"`
}

// EvaluationMetadata summarizes an evaluation run for reporting and audit.
type EvaluationMetadata struct {
	EvaluatedAt       time.Time `json:"evaluated_at"`
	MetCount          int       `json:"met_count"`
	TotalCount        int       `json:"total_count"`
	AverageConfidence float64   `json:"average_confidence,omitempty"`
	FromCache         bool      `json:"from_cache,omitempty"`
}

// EvaluationResult is the complete, JSON-serializable outcome of one PA
// evaluation request.
type EvaluationResult struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id"`
	Insurer    string     `json:"insurer"`
	DrugName   string     `json:"drug_name"`
	Dose       string     `json:"dose"`
	Indication Indication `json:"indication,omitempty"`

	Criteria        []CriterionResult  `json:"criteria"`
	Likelihood      ApprovalLikelihood `json:"approval_likelihood"`
	Summary         string             `json:"summary"`
	Recommendations []Recommendation   `json:"recommendations"`
	Metadata        EvaluationMetadata `json:"metadata"`
}

// EvaluationRequest bundles the inputs for one PA evaluation.
type EvaluationRequest struct {
	Patient    *PatientSnapshot `json:"patient" validate:"required"`
	Insurer    string           `json:"insurer" validate:"required"`
	DrugName   string           `json:"drug_name" validate:"required"`
	Dose       string           `json:"dose" validate:"required"`
	Indication Indication       `json:"indication,omitempty"`
}

// Validate ensures the request carries the identity fields the pipeline and
// the cache key depend on.
func (r *EvaluationRequest) Validate() error {
	if r.Patient == nil || r.Patient.ID == "" {
		return fmt.Errorf("evaluation request: patient with ID is required")
	}
	if r.Insurer == "" {
		return fmt.Errorf("evaluation request: insurer is required")
	}
	if r.DrugName == "" {
		return fmt.Errorf("evaluation request: drug name is required")
	}
	if r.Dose == "" {
		return fmt.Errorf("evaluation request: %w: dose is required", ErrInvalidDoseRequest)
	}
	return nil
}
