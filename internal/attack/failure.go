package attack

import "github.com/octoreflex/flowcore/internal/flow"

// FailurePolicy describes the response the orchestrator should apply when
// a failure-matrix rule fires: which budget to spend, how to back off, and
// where to recover to. RecoverPath is resolved against the current state
// at lookup time when the rule was registered with recoverSelf.
type FailurePolicy struct {
	FailureCode     flow.FailureCode
	PrimaryAction   string
	RecoverPath     flow.State
	RetryBudgetKey  string
	BackoffStrategy string
	StopCondition   string
}

type matrixKey struct {
	state flow.State
	event flow.EventType
}

// recoverSelf marks a rule's RecoverPath as resolved to whatever state the
// rule was looked up under, rather than a fixed state.
const recoverSelf = flow.State(255)

// Matrix maps (state, event) pairs to the FailurePolicy that governs them.
// It is built once (NewMatrix) and is read-only thereafter, so it is safe
// for concurrent use without its own lock.
type Matrix struct {
	rules map[matrixKey]FailurePolicy
}

// NewMatrix builds the canonical failure matrix (spec §4.4 / Failure
// Handling Matrix v1.0 "Top 9" mapping).
func NewMatrix() *Matrix {
	m := &Matrix{rules: make(map[matrixKey]FailurePolicy)}

	m.add(flow.S5, flow.EvSeatTaken, FailurePolicy{
		FailureCode:     flow.FSeatTaken,
		PrimaryAction:   "select another seat candidate",
		RecoverPath:     recoverSelf,
		RetryBudgetKey:  "N_seat",
		BackoffStrategy: "jitter + short wait",
		StopCondition:   "fall back to S4 when N_seat exhausted",
	})

	m.add(flow.S5, flow.EvHoldFailed, FailurePolicy{
		FailureCode:     flow.FHoldFailed,
		PrimaryAction:   "retry or switch candidate",
		RecoverPath:     recoverSelf,
		RetryBudgetKey:  "N_hold",
		BackoffStrategy: "short exponential backoff",
		StopCondition:   "fall back to S4 when N_hold exhausted",
	})

	m.add(flow.S6, flow.EvTxnRollbackRequired, FailurePolicy{
		FailureCode:    flow.FHoldExpired,
		PrimaryAction:  "roll back and reselect",
		RecoverPath:    flow.S5,
		RetryBudgetKey: "N_txn_rb",
		StopCondition:  "terminate on repeat",
	})

	m.add(flow.S4, flow.EvSectionEmpty, FailurePolicy{
		FailureCode:    flow.FSectionEmpty,
		PrimaryAction:  "select another section",
		RecoverPath:    recoverSelf,
		RetryBudgetKey: "N_section",
		StopCondition:  "terminate when candidates exhausted",
	})

	m.add(flow.S3, flow.EvChallengeFailed, FailurePolicy{
		FailureCode:     flow.FChallengeFailed,
		PrimaryAction:   "retry with relaxed tempo",
		RecoverPath:     recoverSelf,
		RetryBudgetKey:  "N_challenge",
		BackoffStrategy: "increasing cooldown",
		StopCondition:   "terminate when N_challenge exhausted",
	})

	for _, s := range []flow.State{flow.S0, flow.S1, flow.S2, flow.S3, flow.S4, flow.S5, flow.S6} {
		m.add(s, flow.EvTimeout, FailurePolicy{
			FailureCode:     flow.FNetworkTimeout,
			PrimaryAction:   "retry",
			RecoverPath:     recoverSelf,
			RetryBudgetKey:  "N_net",
			BackoffStrategy: "exponential backoff",
			StopCondition:   "terminate when timebox exceeded",
		})
		m.add(s, flow.EvSessionExpired, FailurePolicy{
			FailureCode:    flow.FSessionExpired,
			PrimaryAction:  "reset session",
			RecoverPath:    flow.S0,
			RetryBudgetKey: "N_session_reset",
			StopCondition:  "terminate on repeated reset",
		})
	}

	m.add(flow.S6, flow.EvPaymentTimeout, FailurePolicy{
		FailureCode:   flow.FPaymentTimeout,
		PrimaryAction: "terminate with failure result",
		RecoverPath:   flow.SX,
		StopCondition: "immediate",
	})

	m.add(flow.S2, flow.EvQueueStuck, FailurePolicy{
		FailureCode:    flow.FSandboxStuck,
		PrimaryAction:  "reset / restart session",
		RecoverPath:    flow.S1,
		RetryBudgetKey: "N_reset",
		StopCondition:  "terminate on repeated reset",
	})

	return m
}

func (m *Matrix) add(state flow.State, event flow.EventType, policy FailurePolicy) {
	m.rules[matrixKey{state, event}] = policy
}

// GetPolicy returns the FailurePolicy registered for (state, eventType), if
// any, with a recoverSelf RecoverPath resolved to state.
func (m *Matrix) GetPolicy(state flow.State, eventType flow.EventType) (FailurePolicy, bool) {
	p, ok := m.rules[matrixKey{state, eventType}]
	if !ok {
		return FailurePolicy{}, false
	}
	if p.RecoverPath == recoverSelf {
		p.RecoverPath = state
	}
	return p, true
}
