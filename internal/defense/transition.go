package defense

import (
	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/policy"
)

// TransitionResult is the Defense transition function's output: the pure
// function never mutates the Context it's handed, so any state it wants
// changed comes back via Mutations for the caller to apply.
type TransitionResult struct {
	NextState      flow.State
	Mutations      Mutations
	Actions        []Action
	FailureCode    flow.FailureCode
	TerminalReason flow.TerminalReason
	ReturnTo       *flow.State
}

// Transition evaluates a single (state, event, context, policy) tuple. Its
// rule order is: guardrail/failure overrides first (token mismatch,
// challenge-fail threshold, seat/hold streaks, explicit DEF_BLOCKED,
// FLOW_ABORT, FLOW_RESET, payment abort, S6 rollback), then normal
// forward progression S0→S1→...→S6→SX mirroring the Attack engine's
// happy path.
func Transition(state flow.State, event flow.SemanticEvent, ctx Context, pol policy.Profile) TransitionResult {
	nextState := state
	var failureCode flow.FailureCode
	var terminalReason flow.TerminalReason
	var returnTo *flow.State
	var actions []Action
	mutations := Mutations{}

	inc := func(field string, current int) int {
		next := current + 1
		mutations[field] = next
		return next
	}

	challengeFailThreshold := pol.GetBudget("challenge_fail_threshold", 3)
	seatTakenStreakThreshold := pol.GetBudget("seat_taken_streak_threshold", 7)

	switch {
	case event.Type == flow.EvSignalTokenMismatch:
		nextState = flow.SX
		failureCode = flow.FPolicyViolation
		terminalReason = flow.ReasonBlocked
		actions = append(actions, Action{Type: flow.ActionBlock, Payload: map[string]any{"reason": "token_mismatch"}})

	case event.Type == flow.EvChallengeFailed:
		count := inc("challenge_fail_count", ctx.ChallengeFailCount)
		if count >= challengeFailThreshold {
			nextState = flow.SX
			failureCode = flow.FChallengeFailed
			terminalReason = flow.ReasonBlocked
			actions = append(actions, Action{Type: flow.ActionBlock, Payload: map[string]any{"reason": "challenge_fail_threshold"}})
		} else {
			nextState = state
		}

	case (event.Type == flow.EvSeatTaken || event.Type == flow.EvHoldFailed) && state == flow.S5:
		var streak int
		if event.Type == flow.EvSeatTaken {
			streak = inc("seat_taken_count", ctx.SeatTakenCount)
		} else {
			streak = inc("hold_fail_count", ctx.HoldFailCount)
		}
		if streak >= seatTakenStreakThreshold {
			actions = append(actions, Action{Type: flow.ActionThrottle, Payload: map[string]any{"state": "S5"}})
		}
		nextState = flow.S5

	case event.Type == flow.EvDefBlocked:
		nextState = flow.SX
		failureCode = flow.FBlocked
		terminalReason = flow.ReasonBlocked

	case event.Type == flow.EvFlowAbort:
		nextState = flow.SX
		terminalReason = flow.ReasonAbort

	case event.Type == flow.EvFlowReset:
		nextState = flow.S0
		terminalReason = flow.ReasonReset
		mutations["challenge_fail_count"] = 0
		mutations["seat_taken_count"] = 0
		mutations["hold_fail_count"] = 0
		mutations["last_non_security_state"] = nil
		mutations["is_sandboxed"] = false
		mutations["session_age"] = int64(0)

	case event.Type == flow.EvPaymentAborted:
		nextState = flow.SX
		terminalReason = flow.ReasonAbort

	case event.Type == flow.EvTxnRollbackRequired && state == flow.S6:
		nextState = flow.S5
		s6 := flow.S6
		returnTo = &s6

	default:
		nextState = normalProgression(state, event.Type)
		if nextState == flow.SX && state == flow.S6 && event.Type == flow.EvPaymentCompleted {
			terminalReason = flow.ReasonDone
		}
	}

	if state == flow.S5 && nextState != flow.S5 {
		if _, ok := mutations["seat_taken_count"]; !ok {
			mutations["seat_taken_count"] = 0
		}
		if _, ok := mutations["hold_fail_count"]; !ok {
			mutations["hold_fail_count"] = 0
		}
	}

	return TransitionResult{
		NextState:      nextState,
		Mutations:      mutations,
		Actions:        actions,
		FailureCode:    failureCode,
		TerminalReason: terminalReason,
		ReturnTo:       returnTo,
	}
}

func normalProgression(state flow.State, eventType flow.EventType) flow.State {
	switch {
	case state == flow.S0 && eventType == flow.EvFlowStart:
		return flow.S1
	case state == flow.S1 && eventType == flow.EvEntryClicked:
		return flow.S2
	case state == flow.S2 && eventType == flow.EvQueuePassed:
		return flow.S3
	case state == flow.S3 && eventType == flow.EvChallengePassed:
		return flow.S4
	case state == flow.S4 && eventType == flow.EvSectionSelected:
		return flow.S5
	case state == flow.S5 && eventType == flow.EvConfirmClicked:
		return flow.S6
	case state == flow.S6 && eventType == flow.EvPaymentCompleted:
		return flow.SX
	}
	return state
}
