package brain

import (
	"testing"

	"github.com/octoreflex/flowcore/internal/flow"
)

func pushSignals(n int, sig flow.EventType) EvidenceState {
	var state EvidenceState
	var agg Aggregator
	for i := 0; i < n; i++ {
		state = agg.ProcessEvent(state, flow.SemanticEvent{Type: sig, SessionID: "test"})
	}
	return state
}

func TestDecideTier_RepetitivePatternEscalation(t *testing.T) {
	var risk RiskController

	cases := []struct {
		signals  int
		wantTier flow.DefenseTier
	}{
		{0, flow.T0},
		{1, flow.T1},
		{2, flow.T1},
		{3, flow.T2},
	}
	for _, c := range cases {
		evidence := pushSignals(c.signals, flow.EvSignalRepetitivePattern)
		tier, _ := risk.DecideTier(evidence, flow.T0, flow.S1, flow.SemanticEvent{Type: flow.EvSignalRepetitivePattern})
		if tier != c.wantTier {
			t.Errorf("after %d signals: tier = %v, want %v", c.signals, tier, c.wantTier)
		}
	}
}

func TestDecideTier_TokenMismatchIsT3Immediately(t *testing.T) {
	var agg Aggregator
	var risk RiskController
	evidence := agg.ProcessEvent(EvidenceState{}, flow.SemanticEvent{Type: flow.EvSignalTokenMismatch})

	tier, update := risk.DecideTier(evidence, flow.T0, flow.S2, flow.SemanticEvent{Type: flow.EvSignalTokenMismatch})
	if tier != flow.T3 {
		t.Fatalf("tier = %v, want T3", tier)
	}
	if update == nil || update.To != flow.T3 {
		t.Errorf("expected a tier update to T3, got %v", update)
	}
}

func TestDecideTier_NoDropWithoutDecay(t *testing.T) {
	var risk RiskController
	// No evidence at all, but currentTier is already T2 — the tier must
	// not silently drop back to T0 outside the R-4 decay path.
	tier, _ := risk.DecideTier(EvidenceState{}, flow.T2, flow.S4, flow.SemanticEvent{Type: flow.EvQueuePassed})
	if tier != flow.T2 {
		t.Errorf("tier = %v, want T2 held (no drop without decay)", tier)
	}
}

func TestDecideTier_DecaysOnChallengePassedInS3(t *testing.T) {
	var risk RiskController
	tier, update := risk.DecideTier(EvidenceState{}, flow.T3, flow.S3, flow.SemanticEvent{Type: flow.EvChallengePassed})
	if tier != flow.T1 {
		t.Fatalf("tier = %v, want T1 after decay", tier)
	}
	if update == nil || update.To != flow.T1 {
		t.Errorf("expected a tier update to T1, got %v", update)
	}
}

func TestPlan_TierActionMatrix(t *testing.T) {
	var planner ActionPlanner

	if plan := planner.Plan(flow.T0, flow.S2, EvidenceState{}); len(plan) != 0 {
		t.Errorf("T0 must plan no actions, got %v", plan)
	}

	plan := planner.Plan(flow.T1, flow.S2, EvidenceState{})
	if len(plan) != 1 || plan[0].Kind != flow.ActionThrottle || plan[0].Intensity != flow.IntensityLight {
		t.Errorf("T1 plan = %v, want a single light throttle", plan)
	}

	plan = planner.Plan(flow.T2, flow.S2, EvidenceState{})
	if len(plan) != 2 || plan[0].Kind != flow.ActionThrottle || plan[1].Kind != flow.ActionChallenge {
		t.Errorf("T2 plan = %v, want strong throttle + medium challenge", plan)
	}

	plan = planner.Plan(flow.T3, flow.S2, EvidenceState{})
	if len(plan) != 1 || plan[0].Kind != flow.ActionBlock {
		t.Errorf("T3 plan = %v, want a single block", plan)
	}
}

func TestPlan_S6OnlyBlockCanIntervene(t *testing.T) {
	var planner ActionPlanner

	if plan := planner.Plan(flow.T2, flow.S6, EvidenceState{}); plan != nil {
		t.Errorf("T2 at S6 must plan nothing, got %v", plan)
	}
	plan := planner.Plan(flow.T3, flow.S6, EvidenceState{})
	if len(plan) != 1 || plan[0].Kind != flow.ActionBlock {
		t.Errorf("T3 at S6 must still plan a block, got %v", plan)
	}
}

func TestPlan_SeatTakenStreakEscalatesThrottle(t *testing.T) {
	var planner ActionPlanner
	evidence := EvidenceState{SeatTakenStreak: 7}
	plan := planner.Plan(flow.T1, flow.S5, evidence)
	if len(plan) != 1 || plan[0].Intensity != flow.IntensityStrong {
		t.Errorf("streak at threshold must upgrade throttle to strong, got %v", plan)
	}
}
