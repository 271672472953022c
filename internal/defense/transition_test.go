package defense

import (
	"testing"

	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/policy"
)

func ev(t flow.EventType) flow.SemanticEvent {
	return flow.SemanticEvent{Type: t, SessionID: "test"}
}

func TestTransition_HappyPath(t *testing.T) {
	pol := policy.Defaults().Default()

	steps := []struct {
		from  flow.State
		event flow.EventType
		want  flow.State
	}{
		{flow.S0, flow.EvFlowStart, flow.S1},
		{flow.S1, flow.EvEntryClicked, flow.S2},
		{flow.S2, flow.EvQueuePassed, flow.S3},
		{flow.S3, flow.EvChallengePassed, flow.S4},
		{flow.S4, flow.EvSectionSelected, flow.S5},
		{flow.S5, flow.EvConfirmClicked, flow.S6},
		{flow.S6, flow.EvPaymentCompleted, flow.SX},
	}
	for _, s := range steps {
		got := Transition(s.from, ev(s.event), Context{}, pol)
		if got.NextState != s.want {
			t.Errorf("Transition(%v, %v) = %v, want %v", s.from, s.event, got.NextState, s.want)
		}
	}
}

func TestTransition_PaymentCompletedFromS6_SetsDoneReason(t *testing.T) {
	pol := policy.Defaults().Default()
	got := Transition(flow.S6, ev(flow.EvPaymentCompleted), Context{}, pol)
	if got.TerminalReason != flow.ReasonDone {
		t.Errorf("TerminalReason = %v, want ReasonDone", got.TerminalReason)
	}
}

func TestTransition_TokenMismatchBlocksImmediately(t *testing.T) {
	pol := policy.Defaults().Default()
	got := Transition(flow.S4, ev(flow.EvSignalTokenMismatch), Context{}, pol)
	if got.NextState != flow.SX {
		t.Fatalf("NextState = %v, want SX", got.NextState)
	}
	if got.TerminalReason != flow.ReasonBlocked {
		t.Errorf("TerminalReason = %v, want ReasonBlocked", got.TerminalReason)
	}
	if len(got.Actions) != 1 || got.Actions[0].Type != flow.ActionBlock {
		t.Errorf("Actions = %v, want a single ActionBlock", got.Actions)
	}
}

func TestTransition_ChallengeFailedBelowThreshold_HoldsState(t *testing.T) {
	pol := policy.Defaults().Default()
	ctx := Context{ChallengeFailCount: 0}
	got := Transition(flow.S3, ev(flow.EvChallengeFailed), ctx, pol)
	if got.NextState != flow.S3 {
		t.Errorf("NextState = %v, want S3 (held)", got.NextState)
	}
	if got.Mutations["challenge_fail_count"] != 1 {
		t.Errorf("challenge_fail_count mutation = %v, want 1", got.Mutations["challenge_fail_count"])
	}
}

func TestTransition_ChallengeFailedAtThreshold_Blocks(t *testing.T) {
	pol := policy.Defaults().Default()
	ctx := Context{ChallengeFailCount: 2} // threshold default is 3
	got := Transition(flow.S3, ev(flow.EvChallengeFailed), ctx, pol)
	if got.NextState != flow.SX {
		t.Fatalf("NextState = %v, want SX", got.NextState)
	}
	if got.TerminalReason != flow.ReasonBlocked {
		t.Errorf("TerminalReason = %v, want ReasonBlocked", got.TerminalReason)
	}
}

func TestTransition_SeatTakenStreakThrottles(t *testing.T) {
	pol := policy.Defaults().Default()
	ctx := Context{SeatTakenCount: 6} // default threshold is 7
	got := Transition(flow.S5, ev(flow.EvSeatTaken), ctx, pol)
	if got.NextState != flow.S5 {
		t.Errorf("NextState = %v, want S5 (held)", got.NextState)
	}
	if len(got.Actions) != 1 || got.Actions[0].Type != flow.ActionThrottle {
		t.Errorf("Actions = %v, want a single ActionThrottle", got.Actions)
	}
}

func TestTransition_FlowReset_ClearsMutations(t *testing.T) {
	pol := policy.Defaults().Default()
	got := Transition(flow.S4, ev(flow.EvFlowReset), Context{ChallengeFailCount: 2}, pol)
	if got.NextState != flow.S0 {
		t.Errorf("NextState = %v, want S0", got.NextState)
	}
	if got.Mutations["challenge_fail_count"] != 0 {
		t.Errorf("challenge_fail_count must reset to 0, got %v", got.Mutations["challenge_fail_count"])
	}
}
