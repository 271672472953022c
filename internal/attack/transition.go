// Package attack implements the Attack engine's pure transition function,
// its failure matrix, the orchestrator driving a scripted event sequence
// through that function, and the ROI/evidence logger that records failure
// recoveries as they happen.
package attack

import (
	"fmt"
	"strings"

	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/policy"
)

// TransitionResult is the immutable output of Transition. Constructing one
// with NextState==SX and no TerminalReason, or vice versa, panics — that
// combination can only arise from a bug in the transition rules themselves
// (invariant I2), not from caller input.
type TransitionResult struct {
	NextState      flow.State
	TerminalReason flow.TerminalReason
	FailureCode    flow.FailureCode
	Notes          []string
}

func result(next flow.State, reason flow.TerminalReason, code flow.FailureCode, notes ...string) TransitionResult {
	if next.IsTerminal() && reason == flow.ReasonNone {
		panic(fmt.Sprintf("attack: transition to %s requires a terminal reason", next))
	}
	if !next.IsTerminal() && reason != flow.ReasonNone {
		panic(fmt.Sprintf("attack: transition to non-terminal %s must not carry a terminal reason (%s)", next, reason))
	}
	return TransitionResult{NextState: next, TerminalReason: reason, FailureCode: code, Notes: notes}
}

// IsTerminal reports whether this result ends the run.
func (r TransitionResult) IsTerminal() bool { return r.NextState.IsTerminal() }

// Transition is the Attack engine's pure transition function: given the
// current state, an incoming event, the active policy profile, and a
// snapshot of budgets/counters, it returns the next state with no side
// effects (no I/O, no globals, no wall-clock reads).
//
// Decision order:
//  1. global terminal events (SESSION_EXPIRED, FATAL_ERROR, POLICY_ABORT,
//     COOLDOWN_TRIGGERED)
//  2. security interrupt (CHALLENGE_DETECTED / DEF_CHALLENGE_FORCED) from
//     any state for which CanBeLastNonSecurity is true
//  3. S3 dispatch
//  4. per-state handler
//  5. SX is a fixed point
func Transition(state flow.State, event flow.SemanticEvent, pol policy.Profile, snap flow.StateSnapshot) TransitionResult {
	et := event.Type

	switch et {
	case flow.EvSessionExpired:
		return result(flow.SX, flow.ReasonReset, "SESSION_EXPIRED", "session expired - immediate reset")
	case flow.EvFatalError:
		return result(flow.SX, flow.ReasonAbort, flow.FailureCode(event.FailureCode), "fatal error - immediate abort")
	case flow.EvPolicyAbort:
		return result(flow.SX, flow.ReasonAbort, flow.FNone, "policy violation - abort")
	case flow.EvCooldownTriggered:
		return result(flow.SX, flow.ReasonCooldown, flow.FNone, "cooldown triggered - immediate cooldown")
	}

	if (et == flow.EvChallengeDetected || et == flow.EvDefChallengeForced) && state.CanBeLastNonSecurity() {
		return result(flow.S3, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("security challenge detected from %s - S3 interrupt", state))
	}

	if state == flow.S3 {
		return handleS3(event, snap, pol)
	}

	switch state {
	case flow.S0:
		return handleS0(event)
	case flow.S1:
		return handleS1(event)
	case flow.S2:
		return handleS2(event)
	case flow.S4:
		return handleS4(event, snap, pol)
	case flow.S5:
		return handleS5(event, snap, pol)
	case flow.S6:
		return handleS6(event, snap, pol)
	case flow.SX:
		return result(flow.SX, flow.ReasonDone, flow.FNone, "already terminal - state held")
	default:
		return result(state, flow.ReasonNone, flow.FNone, fmt.Sprintf("unknown state %s - held", state))
	}
}

func handleS0(event flow.SemanticEvent) TransitionResult {
	if event.Type == flow.EvFlowStart {
		return result(flow.S1, flow.ReasonNone, flow.FNone, "bootstrap complete - advancing to S1")
	}
	return result(flow.S0, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S0 - ignored", event.Type))
}

func handleS1(event flow.SemanticEvent) TransitionResult {
	if event.Type == flow.EvEntryEnabled {
		return result(flow.S2, flow.ReasonNone, flow.FNone, "entry enabled - advancing to S2")
	}
	return result(flow.S1, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S1 - ignored", event.Type))
}

func handleS2(event flow.SemanticEvent) TransitionResult {
	switch event.Type {
	case flow.EvQueuePassed, flow.EvChallengeNotPresent, flow.EvSectionListReady,
		flow.EvQueueShown, flow.EvPopupOpened, flow.EvSectionSelected:
		return result(flow.S4, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("queue advance (%s) - moving to S4", event.Type))
	case flow.EvSeatSelected, flow.EvHoldAcquired:
		return result(flow.S5, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("forward jump from queue (%s) - moving to S5", event.Type))
	case flow.EvPaymentCompleted:
		return result(flow.SX, flow.ReasonDone, flow.FNone,
			"payment completed directly from queue - success")
	}
	return result(flow.S2, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S2 - ignored", event.Type))
}

func handleS3(event flow.SemanticEvent, snap flow.StateSnapshot, pol policy.Profile) TransitionResult {
	switch event.Type {
	case flow.EvChallengePassed, flow.EvChallengeNotPresent:
		verb := "passed"
		if event.Type == flow.EvChallengeNotPresent {
			verb = "confirmed absent"
		}
		if snap.LastNonSecurityState != nil {
			returnTo := *snap.LastNonSecurityState
			return result(returnTo, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("challenge %s - returning to %s", verb, returnTo))
		}
		return result(flow.S1, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("challenge %s - no last_non_security_state, defaulting to S1", verb))

	case flow.EvChallengeFailed:
		limit := pol.GetBudget("N_challenge", 1)
		failCount := snap.Counters["CHALLENGE_FAILED"] + 1
		if failCount < limit {
			return result(flow.S3, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("challenge failed - attempt %d/%d, holding S3", failCount, limit))
		}
		reasonStr := pol.GetPolicy("challenge_fail_policy", "abort")
		reason := reasonStrToTerminal(reasonStr)
		return result(flow.SX, reason, "CHALLENGE_BUDGET_EXHAUSTED",
			fmt.Sprintf("challenge budget exhausted (%d) - policy %q -> %s", failCount, reasonStr, reason))

	case flow.EvChallengeAppeared:
		return result(flow.S3, flow.ReasonNone, flow.FNone, "challenge appeared - holding S3")
	}
	return result(flow.S3, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S3 - ignored", event.Type))
}

func handleS4(event flow.SemanticEvent, snap flow.StateSnapshot, pol policy.Profile) TransitionResult {
	switch event.Type {
	case flow.EvSectionSelected:
		return result(flow.S5, flow.ReasonNone, flow.FNone, "section selected - advancing to S5")
	case flow.EvSeatSelected, flow.EvHoldAcquired, flow.EvPaymentPageEntered:
		return result(flow.S6, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("forward jump from section (%s) - moving to S6", event.Type))
	case flow.EvPaymentCompleted:
		return result(flow.SX, flow.ReasonDone, flow.FNone,
			"payment completed directly from section selection - success")
	case flow.EvChallengeAppeared, flow.EvSectionListReady:
		return result(flow.S4, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("informational event (%s) - holding S4", event.Type))
	case flow.EvSectionEmpty:
		limit := pol.GetBudget("N_section", 1)
		emptyCount := snap.Counters["SECTION_EMPTY"] + 1
		if emptyCount < limit {
			return result(flow.S4, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("section empty - %d/%d remaining, holding S4", emptyCount, limit))
		}
		reasonStr := pol.GetPolicy("section_empty_policy", "abort")
		if reasonStr == "abort" {
			return result(flow.SX, flow.ReasonAbort, "SECTION_BUDGET_EXHAUSTED",
				fmt.Sprintf("section budget exhausted (%d) - abort", emptyCount))
		}
		return result(flow.S4, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("section budget exhausted (%d) - policy %q keeps S4", emptyCount, reasonStr))
	}
	return result(flow.S4, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S4 - ignored", event.Type))
}

func handleS5(event flow.SemanticEvent, snap flow.StateSnapshot, pol policy.Profile) TransitionResult {
	switch event.Type {
	case flow.EvSeatSelected, flow.EvPaymentPageEntered, flow.EvHoldAcquired:
		return result(flow.S6, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("%s - advancing to S6", event.Type))

	case flow.EvSeatTaken:
		limit := pol.GetBudget("N_seat", 1)
		attempt := snap.Counters["SEAT_TAKEN"] + 1
		if attempt < limit {
			return result(flow.S5, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("seat taken - attempt %d/%d, holding S5", attempt, limit))
		}
		policyVal := pol.GetPolicy("seat_taken_policy", "rollback_s4")
		if policyVal == "abort" {
			return result(flow.SX, flow.ReasonAbort, flow.FNone,
				"seat taken - retry budget exhausted and policy terminates")
		}
		return result(flow.S4, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("seat taken - budget exhausted (%d/%d) - policy %q rolls back to S4", attempt, limit, policyVal))

	case flow.EvPaymentCompleted:
		return result(flow.SX, flow.ReasonDone, flow.FNone,
			"payment completed directly from seat selection - success")
	}
	return result(flow.S5, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S5 - ignored", event.Type))
}

func handleS6(event flow.SemanticEvent, snap flow.StateSnapshot, pol policy.Profile) TransitionResult {
	switch event.Type {
	case flow.EvPaymentCompleted:
		return result(flow.SX, flow.ReasonDone, flow.FNone, "payment completed - ticketing succeeded")

	case flow.EvHoldAcquired:
		return result(flow.S6, flow.ReasonNone, flow.FNone, "hold confirmed - holding S6, awaiting payment")

	case flow.EvHoldFailed:
		limit := pol.GetBudget("N_hold", 1)
		attempt := snap.Counters["HOLD_FAILED"] + 1
		if attempt < limit {
			return result(flow.S5, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("hold failed - attempt %d/%d, rolling back to S5", attempt, limit))
		}
		policyVal := pol.GetPolicy("hold_fail_policy", "rollback_s4")
		if policyVal == "abort" {
			return result(flow.SX, flow.ReasonAbort, flow.FNone,
				"hold failed - retry budget exhausted and policy terminates")
		}
		nextState := flow.S4
		if strings.Contains(policyVal, "s5") {
			nextState = flow.S5
		}
		return result(nextState, flow.ReasonNone, flow.FNone,
			fmt.Sprintf("hold failed - budget exhausted (%d/%d), policy %q rolls back to %s", attempt, limit, policyVal, nextState))

	case flow.EvTxnRollbackRequired:
		reasonStr := pol.GetPolicy("rollback_policy", "rollback_s5")
		if reasonStr == "abort" {
			return result(flow.SX, flow.ReasonAbort, flow.FNone,
				"transaction rollback required - fatal, aborting")
		}
		return result(flow.S5, flow.ReasonNone, flow.FNone, "transaction rollback required - rolling back to S5")

	case flow.EvPaymentTimeout:
		reasonStr := pol.GetPolicy("payment_timeout_policy", "abort")
		if strings.HasPrefix(reasonStr, "rollback") {
			nextState := flow.S4
			if strings.Contains(reasonStr, "s5") {
				nextState = flow.S5
			}
			return result(nextState, flow.ReasonNone, flow.FNone,
				fmt.Sprintf("payment timeout - policy %q rolls back to %s", reasonStr, nextState))
		}
		return result(flow.SX, flow.ReasonAbort, "PAYMENT_TIMEOUT", "payment timeout - abort")
	}
	return result(flow.S6, flow.ReasonNone, flow.FNone,
		fmt.Sprintf("invalid event %q in S6 - ignored", event.Type))
}

func reasonStrToTerminal(s string) flow.TerminalReason {
	switch s {
	case "cooldown":
		return flow.ReasonCooldown
	case "reset":
		return flow.ReasonReset
	default:
		return flow.ReasonAbort
	}
}
