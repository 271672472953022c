package attack

import (
	"fmt"
	"strings"

	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/policy"
)

// ExecutionResult is the outcome of running an event list to completion:
// the deduplicated path of states visited and the final store contents.
type ExecutionResult struct {
	StatePath      []flow.State
	TerminalState  flow.State
	TerminalReason flow.TerminalReason
	HandledEvents  int
	TotalElapsedMs int64
	FinalBudgets   map[string]int
	FinalCounters  map[string]int
}

// IsSuccess reports whether the run ended with TerminalReason DONE.
func (r ExecutionResult) IsSuccess() bool { return r.TerminalReason == flow.ReasonDone }

// RunEvents drives events through the Attack transition function one at a
// time against store, under the given policy profile. The orchestrator
// never makes its own judgment calls — every decision comes out of
// Transition; this loop only accumulates results, applies failure-matrix
// budget bookkeeping, and tracks the deduplicated state path.
//
// Returns an error if the event list is exhausted without reaching SX —
// a scripted scenario's event list is expected to drive the run to
// completion, and failing to do so signals a malformed fixture rather
// than a recoverable runtime condition.
func RunEvents(
	events []flow.SemanticEvent,
	store *flow.Store,
	pol policy.Profile,
	matrix *Matrix,
	roiLogger *ROILogger,
) (ExecutionResult, error) {
	statePath := []flow.State{store.Snapshot().CurrentState}
	handledEvents := 0
	var lastResult TransitionResult
	haveResult := false

	for _, event := range events {
		snap := store.Snapshot()
		currentState := snap.CurrentState

		if currentState.IsTerminal() {
			break
		}

		result := Transition(currentState, event, pol, snap)

		if matrix != nil {
			if fp, ok := matrix.GetPolicy(currentState, event.Type); ok {
				result = applyFailurePolicy(store, fp, result, event, snap, roiLogger)
			}
		}

		lastResult = result
		haveResult = true

		nextState := result.NextState
		store.SetState(nextState)

		if nextState.IsSecurity() && currentState.CanBeLastNonSecurity() {
			cur := currentState
			store.SetLastNonSecurityState(&cur)
		}

		if statePath[len(statePath)-1] != nextState {
			statePath = append(statePath, nextState)
		}

		handledEvents++

		if nextState.IsTerminal() {
			break
		}
	}

	finalSnap := store.Snapshot()
	if !finalSnap.CurrentState.IsTerminal() {
		return ExecutionResult{}, fmt.Errorf(
			"attack: event list exhausted without reaching a terminal state (current=%s)",
			finalSnap.CurrentState)
	}

	terminalReason := flow.ReasonDone
	if haveResult && lastResult.TerminalReason != flow.ReasonNone {
		terminalReason = lastResult.TerminalReason
	}

	return ExecutionResult{
		StatePath:      statePath,
		TerminalState:  finalSnap.CurrentState,
		TerminalReason: terminalReason,
		HandledEvents:  handledEvents,
		TotalElapsedMs: finalSnap.ElapsedMs,
		FinalBudgets:   finalSnap.Budgets,
		FinalCounters:  finalSnap.Counters,
	}, nil
}

// applyFailurePolicy spends the matching retry budget (if any) and
// redirects the transition result accordingly, logging an ROI/evidence
// record for the recovery.
func applyFailurePolicy(
	store *flow.Store,
	fp FailurePolicy,
	original TransitionResult,
	event flow.SemanticEvent,
	snap flow.StateSnapshot,
	roiLogger *ROILogger,
) TransitionResult {
	nextState := original.NextState
	terminalReason := original.TerminalReason

	if fp.RetryBudgetKey != "" {
		currentBudget := store.GetBudget(fp.RetryBudgetKey, 0)
		if currentBudget > 0 {
			store.DecrementBudget(fp.RetryBudgetKey, 1)
			nextState = fp.RecoverPath
		} else {
			switch {
			case strings.Contains(fp.StopCondition, "S4"):
				nextState = flow.S4
				terminalReason = flow.ReasonNone
			case strings.Contains(fp.StopCondition, "SX"):
				nextState = flow.SX
				terminalReason = flow.ReasonAbort
			}
		}
	}

	if roiLogger != nil {
		roiLogger.LogFailure(
			snap.CurrentState,
			event.Type,
			fp.FailureCode,
			store.Snapshot().Budgets,
			0,
			snap.ElapsedMs,
			nextState,
		)
	}

	notes := append(append([]string{}, original.Notes...), fmt.Sprintf("failure policy applied: %s", fp.FailureCode))

	if nextState.IsTerminal() && terminalReason == flow.ReasonNone {
		terminalReason = flow.ReasonAbort
	}
	if !nextState.IsTerminal() {
		terminalReason = flow.ReasonNone
	}

	return TransitionResult{
		NextState:      nextState,
		TerminalReason: terminalReason,
		FailureCode:    fp.FailureCode,
		Notes:          notes,
	}
}
