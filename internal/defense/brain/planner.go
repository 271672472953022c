package brain

import "github.com/octoreflex/flowcore/internal/flow"

// PlannedAction is one action ActionPlanner wants the Actuator to render,
// qualified by an intensity where applicable.
type PlannedAction struct {
	Kind      flow.ActionKind
	Intensity flow.ActionIntensity
}

// seatTakenStreakThreshold is the seat_taken_streak value at which F-3
// escalates the planned THROTTLE to strong at any tier below T3.
const seatTakenStreakThreshold = 7

// ActionPlanner turns a DefenseTier plus flow/evidence context into the set
// of actions the Actuator should render. Plan is pure and returns nil for
// a tier that calls for no action.
type ActionPlanner struct{}

// Plan implements the tier-action matrix (T0 none, T1 THROTTLE light, T2
// THROTTLE strong + CHALLENGE medium, T3 BLOCK), subject to two overrides:
// F-5 protects S6 from everything except a T3 block, and F-3 escalates a
// seat-taken streak at or above threshold to a strong THROTTLE even at T1.
func (ActionPlanner) Plan(tier flow.DefenseTier, flowState flow.State, evidence EvidenceState) []PlannedAction {
	// F-5: once in S6 (payment), only an outright block may intervene —
	// a checkout in flight must not be throttled, challenged, or sandboxed.
	if flowState == flow.S6 {
		if tier == flow.T3 {
			return []PlannedAction{{Kind: flow.ActionBlock}}
		}
		return nil
	}

	var plan []PlannedAction
	switch tier {
	case flow.T0:
		// no action
	case flow.T1:
		plan = append(plan, PlannedAction{Kind: flow.ActionThrottle, Intensity: flow.IntensityLight})
	case flow.T2:
		plan = append(plan,
			PlannedAction{Kind: flow.ActionThrottle, Intensity: flow.IntensityStrong},
			PlannedAction{Kind: flow.ActionChallenge, Intensity: flow.IntensityMedium},
		)
	case flow.T3:
		plan = append(plan, PlannedAction{Kind: flow.ActionBlock})
	}

	// F-3: a sustained seat-taken streak earns a strong throttle even when
	// the tier alone would only call for a light one or none at all.
	if evidence.SeatTakenStreak >= seatTakenStreakThreshold && tier != flow.T3 {
		plan = upgradeThrottle(plan)
	}

	return plan
}

func upgradeThrottle(plan []PlannedAction) []PlannedAction {
	for i, a := range plan {
		if a.Kind == flow.ActionThrottle {
			plan[i].Intensity = flow.IntensityStrong
			return plan
		}
	}
	return append(plan, PlannedAction{Kind: flow.ActionThrottle, Intensity: flow.IntensityStrong})
}
