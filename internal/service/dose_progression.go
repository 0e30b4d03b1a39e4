package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
)

// ProgressionVerdict is the outcome of validating a requested dose transition
// against the patient's therapy history for one drug.
type ProgressionVerdict struct {
	Status                domain.CriterionStatus
	Critical              bool
	Reason                string
	DisplayValue          string
	CurrentDose           string
	RequiredNextDose      string
	DaysOnCurrentDose     int
	NeedsReauthorization  bool
	RequiresJustification bool
}

// DoseProgression validates dose transitions. States per drug-patient pair
// run Naive -> Starting -> Titrating -> Maintenance; expired prior
// authorizations and de-escalations are surfaced as flags, not denials.
type DoseProgression struct {
	logger  *logrus.Logger
	minHold time.Duration
	now     func() time.Time
}

// NewDoseProgression creates a dose progression validator. minHoldDays is the
// minimum time on the current dose before escalation; zero applies the
// policy default of 28 days.
func NewDoseProgression(logger *logrus.Logger, minHoldDays int) *DoseProgression {
	if minHoldDays <= 0 {
		minHoldDays = DefaultMinDoseHoldDays
	}
	return &DoseProgression{
		logger:  logger,
		minHold: time.Duration(minHoldDays) * 24 * time.Hour,
		now:     time.Now,
	}
}

// Evaluate decides whether the requested dose is a valid transition. The
// function is total: every (history state, requested dose) pair maps to
// exactly one verdict.
func (dp *DoseProgression) Evaluate(patient *domain.PatientSnapshot, policy *domain.CoveragePolicy, requestedDose string) ProgressionVerdict {
	dose := NormalizeDose(requestedDose)
	reqIdx := scheduleIndex(policy, dose)
	startingDose := NormalizeDose(policy.StartingDose())

	episode := patient.ActiveEpisode(policy.DrugName)
	if episode == nil {
		return dp.evaluateNaive(policy, dose, reqIdx, startingDose)
	}
	return dp.evaluateActive(episode, policy, dose, reqIdx, startingDose)
}

// evaluateNaive handles patients with no active episode for the drug.
func (dp *DoseProgression) evaluateNaive(policy *domain.CoveragePolicy, dose string, reqIdx int, startingDose string) ProgressionVerdict {
	if startingDose != "" && dose == startingDose {
		return ProgressionVerdict{
			Status:       domain.StatusMet,
			DisplayValue: "Drug naive",
			Reason:       fmt.Sprintf("Patient is drug naive; %s is the appropriate starting dose", dose),
		}
	}
	return ProgressionVerdict{
		Status:           domain.StatusNotMet,
		Critical:         true,
		DisplayValue:     "No prior therapy",
		Reason:           fmt.Sprintf("Drug-naive patients must begin at the starting dose %s; requested %s", startingDose, dose),
		RequiredNextDose: startingDose,
	}
}

// evaluateActive handles patients with an active episode for the drug.
func (dp *DoseProgression) evaluateActive(episode *domain.TherapyEpisode, policy *domain.CoveragePolicy, dose string, reqIdx int, startingDose string) ProgressionVerdict {
	now := dp.now()

	currentDose := NormalizeDose(episode.CurrentDose)
	if currentDose == "" {
		if step := episode.CurrentStep(); step != nil {
			currentDose = NormalizeDose(step.Dose)
		}
	}
	curIdx := scheduleIndex(policy, currentDose)

	daysOnCurrent := 0
	if step := episode.CurrentStep(); step != nil {
		daysOnCurrent = int(now.Sub(step.StartDate).Hours() / 24)
	}

	// Continuation at the current dose, including continuation at max dose.
	// An expired prior authorization is surfaced, not failed.
	if dose == currentDose && currentDose != "" {
		verdict := ProgressionVerdict{
			Status:            domain.StatusMet,
			DisplayValue:      fmt.Sprintf("Continuing %s", dose),
			Reason:            fmt.Sprintf("Continuation of current dose %s", dose),
			CurrentDose:       currentDose,
			DaysOnCurrentDose: daysOnCurrent,
		}
		if episode.PAExpirationDate != nil && episode.PAExpirationDate.Before(now) {
			verdict.NeedsReauthorization = true
			verdict.Reason += "; prior authorization has expired and needs reauthorization"
		}
		return verdict
	}

	// Requested dose is off the schedule entirely, which covers requests
	// beyond the maximum dose.
	if reqIdx < 0 {
		return ProgressionVerdict{
			Status:            domain.StatusNotMet,
			Reason:            fmt.Sprintf("Requested dose %s is not on the policy dose schedule (maximum %s)", dose, NormalizeDose(policy.MaxDose())),
			CurrentDose:       currentDose,
			DaysOnCurrentDose: daysOnCurrent,
		}
	}

	// Current dose not recognized on this schedule: the history predates a
	// policy change or came from another plan. Require manual review rather
	// than guessing a transition.
	if curIdx < 0 {
		dp.logger.WithFields(logrus.Fields{
			"drug":         policy.DrugName,
			"current_dose": currentDose,
		}).Warn("Active episode dose not on policy schedule")
		return ProgressionVerdict{
			Status:            domain.StatusNotMet,
			Reason:            fmt.Sprintf("Current dose %s is not on the policy schedule; manual review required before changing dose", currentDose),
			CurrentDose:       currentDose,
			DaysOnCurrentDose: daysOnCurrent,
		}
	}

	switch {
	case reqIdx == curIdx+1:
		// Sequential escalation, gated by the minimum hold period.
		if daysOnCurrent < int(dp.minHold.Hours()/24) {
			return ProgressionVerdict{
				Status:            domain.StatusNotMet,
				Critical:          true,
				DisplayValue:      fmt.Sprintf("%d days on %s", daysOnCurrent, currentDose),
				Reason:            fmt.Sprintf("Too soon to escalate: %d days on %s, minimum %d days required", daysOnCurrent, currentDose, int(dp.minHold.Hours()/24)),
				CurrentDose:       currentDose,
				RequiredNextDose:  dose,
				DaysOnCurrentDose: daysOnCurrent,
			}
		}
		return ProgressionVerdict{
			Status:            domain.StatusMet,
			DisplayValue:      fmt.Sprintf("Escalating %s to %s", currentDose, dose),
			Reason:            fmt.Sprintf("Appropriate escalation from %s after %d days", currentDose, daysOnCurrent),
			CurrentDose:       currentDose,
			DaysOnCurrentDose: daysOnCurrent,
		}

	case reqIdx > curIdx+1:
		required := NormalizeDose(policy.DoseSchedule[curIdx+1].Value)
		return ProgressionVerdict{
			Status:            domain.StatusNotMet,
			Critical:          true,
			Reason:            fmt.Sprintf("Cannot skip doses; must progress sequentially from %s to %s", currentDose, required),
			CurrentDose:       currentDose,
			RequiredNextDose:  required,
			DaysOnCurrentDose: daysOnCurrent,
		}

	case dose == startingDose:
		// Restarting at the starting dose while an episode is active.
		return ProgressionVerdict{
			Status:            domain.StatusNotMet,
			Reason:            fmt.Sprintf("Cannot restart at starting dose %s while therapy is active at %s", dose, currentDose),
			CurrentDose:       currentDose,
			DaysOnCurrentDose: daysOnCurrent,
		}

	default:
		// De-escalation: clinically valid but requires justification.
		return ProgressionVerdict{
			Status:                domain.StatusMet,
			DisplayValue:          fmt.Sprintf("De-escalating %s to %s", currentDose, dose),
			Reason:                fmt.Sprintf("De-escalation from %s to %s requires clinical justification", currentDose, dose),
			CurrentDose:           currentDose,
			DaysOnCurrentDose:     daysOnCurrent,
			RequiresJustification: true,
		}
	}
}
