package defense

import (
	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/policy"
)

// TraceEntry is one step of a Defense run: the event handled, the state
// transition it produced, any actions emitted, and the reason (terminal
// reason or failure code) if one applies.
type TraceEntry struct {
	Seq     int
	Event   flow.EventType
	From    flow.State
	To      flow.State
	Actions []flow.ActionKind
	Reason  string
}

// RunResult is the outcome of driving a Defense run to completion (or
// event-list exhaustion): the final state and the full step-by-step trace,
// useful for scenario verification and audit replay.
type RunResult struct {
	FinalState flow.State
	Trace      []TraceEntry
}

// Run drives events through Transition, starting from S0 with a zero
// Context, applying each step's Mutations to its own running context copy.
// It stops as soon as a step carries a terminal reason or lands on SX.
func Run(events []flow.SemanticEvent, pol policy.Profile) RunResult {
	state := flow.S0
	ctx := Context{}
	trace := make([]TraceEntry, 0, len(events))

	for i, event := range events {
		fromState := state

		result := Transition(state, event, ctx, pol)
		ctx = result.Mutations.Apply(ctx)

		reason := ""
		switch {
		case result.TerminalReason != flow.ReasonNone:
			reason = result.TerminalReason.String()
		case result.FailureCode != "":
			reason = string(result.FailureCode)
		}

		actionKinds := make([]flow.ActionKind, 0, len(result.Actions))
		for _, a := range result.Actions {
			actionKinds = append(actionKinds, a.Type)
		}

		trace = append(trace, TraceEntry{
			Seq:     i + 1,
			Event:   event.Type,
			From:    fromState,
			To:      result.NextState,
			Actions: actionKinds,
			Reason:  reason,
		})

		state = result.NextState

		if result.TerminalReason != flow.ReasonNone || state == flow.SX {
			break
		}
	}

	return RunResult{FinalState: state, Trace: trace}
}
