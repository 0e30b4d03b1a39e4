package service

import (
	"regexp"
	"strings"

	"github.com/pa-evaluation-engine/internal/domain"
)

var doseValueRegexp = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*(mg|mcg|ml|units?)$`)

// NormalizeDose canonicalizes a dose string into a comparable form:
// lowercase, trimmed, with a single space between value and unit
// ("0.25MG" and "0.25 mg" both normalize to "0.25 mg").
func NormalizeDose(raw string) string {
	dose := strings.ToLower(strings.TrimSpace(raw))
	dose = strings.Join(strings.Fields(dose), " ")
	compact := strings.ReplaceAll(dose, " ", "")
	if m := doseValueRegexp.FindStringSubmatch(compact); m != nil {
		return m[1] + " " + m[2]
	}
	return dose
}

// ClassifyDose resolves the requested dose against the policy's dose schedule
// and derives the DoseContext the evaluators consume. Lookup is by exact
// normalized value; an off-schedule dose falls back to a legacy binary
// starting/maintenance split, defaulting to maintenance. Pure, no I/O.
func ClassifyDose(policy *domain.CoveragePolicy, doseString string) domain.DoseContext {
	dose := NormalizeDose(doseString)

	if idx := scheduleIndex(policy, dose); idx >= 0 {
		entry := policy.DoseSchedule[idx]
		return doseContextFor(dose, entry.Phase, entry.DurationWeeks, idx)
	}

	// Legacy fallback for policies with partial schedules: anything matching
	// the starting dose is starting, everything else is maintenance.
	if starting := NormalizeDose(policy.StartingDose()); starting != "" && dose == starting {
		return doseContextFor(dose, domain.PhaseStarting, 0, -1)
	}
	return doseContextFor(dose, domain.PhaseMaintenance, 0, -1)
}

// scheduleIndex returns the schedule position of the normalized dose, or -1.
func scheduleIndex(policy *domain.CoveragePolicy, normalizedDose string) int {
	for i, entry := range policy.DoseSchedule {
		if NormalizeDose(entry.Value) == normalizedDose {
			return i
		}
	}
	return -1
}

func doseContextFor(dose string, phase domain.DosePhase, durationWeeks, idx int) domain.DoseContext {
	return domain.DoseContext{
		Dose:              dose,
		DoseType:          phase,
		IsStartingDose:    phase == domain.PhaseStarting,
		IsTitrationDose:   phase == domain.PhaseTitration,
		IsMaintenanceDose: phase == domain.PhaseMaintenance,
		DurationWeeks:     durationWeeks,
		ScheduleIndex:     idx,
	}
}
