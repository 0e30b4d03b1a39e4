// Package domain contains core business entities and types for prior-authorization
// (PA) evaluation of prescription drug requests against payer coverage policies.
//
// A PA evaluation takes a patient's clinical record, a requested drug and dose,
// and the payer's coverage criteria, and produces a structured, explainable
// decision with an aggregate approval-likelihood score.
package domain

import (
	"errors"
	"strings"
)

// CriterionStatus is the canonical outcome vocabulary for a single PA criterion.
// All upstream status strings (payer portals, chart abstractions, legacy feeds)
// are normalized into this set before they reach the aggregator.
type CriterionStatus string

const (
	StatusMet                  CriterionStatus = "MET"
	StatusNotMet               CriterionStatus = "NOT_MET"
	StatusNotApplicable        CriterionStatus = "NOT_APPLICABLE"
	StatusWarning              CriterionStatus = "WARNING"
	StatusPendingDocumentation CriterionStatus = "PENDING_DOCUMENTATION"
	StatusPartiallyMet         CriterionStatus = "PARTIALLY_MET"
	StatusNotEvaluated         CriterionStatus = "NOT_EVALUATED"
)

// CriterionType identifies a PA requirement category. The set is closed:
// every type listed here has exactly one registered evaluator, and a policy
// referencing an unlisted type is a configuration error.
type CriterionType string

const (
	CriterionAge                     CriterionType = "age"
	CriterionBMI                     CriterionType = "bmi"
	CriterionDiagnosis               CriterionType = "diagnosis"
	CriterionLabValue                CriterionType = "labValue"
	CriterionLifestyleModification   CriterionType = "lifestyleModification"
	CriterionPriorTherapies          CriterionType = "priorTherapies"
	CriterionStepTherapy             CriterionType = "stepTherapy"
	CriterionPrescriberQualification CriterionType = "prescriberQualification"
	CriterionContraindications       CriterionType = "contraindications"
	CriterionDoseProgression         CriterionType = "doseProgression"
	CriterionWeightLoss              CriterionType = "weightLoss"
	CriterionWeightMaintained        CriterionType = "weightMaintained"
	CriterionEfficacy                CriterionType = "efficacy"
	CriterionCVDRisk                 CriterionType = "cvdRisk"
	CriterionDocumentation           CriterionType = "documentation"
)

// AllCriterionTypes lists every registered criterion type. Policy validation
// checks evaluationRules entries against this set.
var AllCriterionTypes = []CriterionType{
	CriterionAge, CriterionBMI, CriterionDiagnosis, CriterionLabValue,
	CriterionLifestyleModification, CriterionPriorTherapies, CriterionStepTherapy,
	CriterionPrescriberQualification, CriterionContraindications,
	CriterionDoseProgression, CriterionWeightLoss, CriterionWeightMaintained,
	CriterionEfficacy, CriterionCVDRisk, CriterionDocumentation,
}

// DosePhase groups schedule entries into the clinical phases of therapy.
type DosePhase string

const (
	PhaseStarting    DosePhase = "starting"
	PhaseTitration   DosePhase = "titration"
	PhaseMaintenance DosePhase = "maintenance"
)

// Indication is the clinical intent behind a prescription. Dual-indication
// drugs resolve to different criteria sets depending on this value.
type Indication string

const (
	IndicationDiabetes   Indication = "diabetes"
	IndicationWeightLoss Indication = "weight_loss"
)

// RecommendationPriority orders remediation guidance.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

// ConfidenceTag labels the aggregator's confidence in an approval-likelihood
// score. "unknown" is reserved for result sets with zero applicable criteria
// and is distinct from a confident denial.
type ConfidenceTag string

const (
	ConfidenceHigh    ConfidenceTag = "high"
	ConfidenceMedium  ConfidenceTag = "medium"
	ConfidenceLow     ConfidenceTag = "low"
	ConfidenceUnknown ConfidenceTag = "unknown"
)

// Validation errors for policy and evaluation data integrity.
var (
	ErrNotFound           = errors.New("not found")
	ErrPolicyNotFound     = errors.New("no coverage policy for insurer/drug pair")
	ErrNoCriteria         = errors.New("coverage policy has no PA criteria configured")
	ErrInvalidStatus      = errors.New("invalid criterion status")
	ErrInvalidPhase       = errors.New("invalid dose phase")
	ErrUnknownCriterion   = errors.New("unknown criterion type")
	ErrInvalidDoseRequest = errors.New("invalid dose request")
)

// statusSynonyms maps heterogeneous upstream status vocabulary onto the
// canonical set. Lookup keys are lowercase and trimmed.
var statusSynonyms = map[string]CriterionStatus{
	"met":      StatusMet,
	"pass":     StatusMet,
	"passed":   StatusMet,
	"yes":      StatusMet,
	"approved": StatusMet,
	"true":     StatusMet,

	"not_met": StatusNotMet,
	"notmet":  StatusNotMet,
	"fail":    StatusNotMet,
	"failed":  StatusNotMet,
	"no":      StatusNotMet,
	"denied":  StatusNotMet,
	"false":   StatusNotMet,

	"not_applicable": StatusNotApplicable,
	"n/a":            StatusNotApplicable,
	"na":             StatusNotApplicable,

	"warning": StatusWarning,
	"warn":    StatusWarning,
	"caution": StatusWarning,

	"pending_documentation": StatusPendingDocumentation,
	"pending":               StatusPendingDocumentation,

	"partially_met": StatusPartiallyMet,
	"partial":       StatusPartiallyMet,

	"not_evaluated": StatusNotEvaluated,
}

// NormalizeStatus canonicalizes a raw status string. The function is total:
// any input maps to exactly one CriterionStatus, with unrecognized or empty
// input defaulting to NOT_MET. It is idempotent, so canonical values pass
// through unchanged.
func NormalizeStatus(raw string) CriterionStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusSynonyms[key]; ok {
		return status
	}
	return StatusNotMet
}

// IsValid reports whether the status belongs to the canonical vocabulary.
func (s CriterionStatus) IsValid() bool {
	switch s {
	case StatusMet, StatusNotMet, StatusNotApplicable, StatusWarning,
		StatusPendingDocumentation, StatusPartiallyMet, StatusNotEvaluated:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s CriterionStatus) String() string {
	return string(s)
}

// CountsTowardDenominator reports whether a result with this status belongs in
// the aggregator's denominator. NOT_APPLICABLE results are excluded so that
// phase-gated criteria never dilute the score.
func (s CriterionStatus) CountsTowardDenominator() bool {
	return s != StatusNotApplicable
}

// IsValid reports whether the criterion type has a registered evaluator.
func (ct CriterionType) IsValid() bool {
	for _, known := range AllCriterionTypes {
		if ct == known {
			return true
		}
	}
	return false
}

// String returns the string representation of the criterion type.
func (ct CriterionType) String() string {
	return string(ct)
}

// IsValid reports whether the phase is one of the three therapy phases.
func (p DosePhase) IsValid() bool {
	switch p {
	case PhaseStarting, PhaseTitration, PhaseMaintenance:
		return true
	default:
		return false
	}
}

// String returns the string representation of the dose phase.
func (p DosePhase) String() string {
	return string(p)
}

// IsValid reports whether the priority is one of the defined levels.
func (p RecommendationPriority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}
