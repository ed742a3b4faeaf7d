package personalization

import "math"

const (
	conflictGuardHalfLife = 10.0
	contestedHalfLife     = 14.0
	supersedingHalfLife   = 30.0
	activeHalfLife        = 180.0
	criticalMultiplier    = 2.0
)

// DecayPlan is the half-life and rate assigned to an inferred memory
// candidate, chosen from its metadata rather than from the usual
// importance/decay models (inferred memories skip stage 2 scoring).
type DecayPlan struct {
	HalfLifeDays float64
	DecayRate    float64
	Label        string
}

// ComputeDecayPlan inspects a candidate's metadata to decide how
// aggressively it should be forgotten: contested or conflicting facts
// decay fast so corrections can take over, confirmed facts decay slowly
// (doubled further when flagged critical).
func ComputeDecayPlan(meta map[string]any) DecayPlan {
	intent, _ := meta["intent"].(string)
	clarificationRequired, _ := meta["clarification_required"].(bool)
	factStatus, _ := meta["fact_status"].(string)
	criticalFact, _ := meta["critical_fact"].(bool)

	var halfLife float64
	var label string

	switch {
	case intent == "inferred_user_fact_conflict":
		halfLife, label = conflictGuardHalfLife, "conflict_guard"
	case clarificationRequired || factStatus == "contested":
		halfLife, label = contestedHalfLife, "contested"
	case factStatus == "superseding":
		halfLife, label = supersedingHalfLife, "superseding"
	default:
		halfLife, label = activeHalfLife, "confirmed"
		if criticalFact {
			halfLife *= criticalMultiplier
		}
	}

	if halfLife < 1.0 {
		halfLife = 1.0
	}
	return DecayPlan{
		HalfLifeDays: halfLife,
		DecayRate:    math.Ln2 / halfLife,
		Label:        label,
	}
}
