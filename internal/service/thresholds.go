package service

// Authoritative clinical thresholds for PA criterion evaluation. Upstream
// policy sources drifted on several of these values; this table is the single
// source of truth the evaluators read from. Changes here require clinical
// product sign-off.

const (
	// DefaultMinAge applies when a policy's age criterion omits min_age.
	DefaultMinAge = 18

	// BMI thresholds for weight-management eligibility. Between the
	// comorbidity threshold and the standalone threshold, at least one
	// qualifying comorbidity is required.
	BMIStandaloneThreshold  = 30.0
	BMIComorbidityThreshold = 27.0

	// DefaultMinWeightLossPercent applies when a weight-loss criterion omits
	// min_percentage.
	DefaultMinWeightLossPercent = 5.0

	// DefaultMinMaintenanceMonths applies when a weight-maintained criterion
	// omits min_months.
	DefaultMinMaintenanceMonths = 3

	// DefaultMinDoseHoldDays is the minimum time on the current dose before
	// escalating to the next schedule step.
	DefaultMinDoseHoldDays = 28

	// DefaultMinPriorTrials applies when a prior-therapies criterion omits
	// min_trials.
	DefaultMinPriorTrials = 1

	// DocumentationRequiredItems is how many of the five chart elements
	// (clinical notes, medications, diagnoses, labs, therapy history) must be
	// present for the documentation criterion.
	DocumentationRequiredItems = 3
)

// qualifyingComorbidities is the fixed comorbidity set that qualifies a
// patient with BMI in the 27-30 band. Matched terms are reported on the
// CriterionResult for audit.
var qualifyingComorbidities = []string{
	"diabetes",
	"hypertension",
	"dyslipidemia",
	"sleep apnea",
	"cardiovascular disease",
}

// contraindicationTerms always deny coverage when present anywhere in the
// patient's diagnosis text, regardless of other criteria.
var contraindicationTerms = []string{
	"medullary thyroid carcinoma",
	"multiple endocrine neoplasia type 2",
	"men 2",
	"pancreatitis",
	"pregnancy",
	"hypersensitivity to glp-1",
}

// cvdRiskFactors are the comorbidities counted toward cardiovascular risk
// when the patient has no established cardiovascular diagnosis.
var cvdRiskFactors = []string{
	"hypertension",
	"dyslipidemia",
	"diabetes",
	"tobacco use",
	"smoking",
	"obesity",
}
