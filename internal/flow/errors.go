package flow

import "errors"

// Sentinel errors naming the configuration/invariant-failure taxonomy shared
// across the attack and defense engines, for matching with errors.Is. No
// function in this module returns or wraps any of them: the packages below
// report these conditions through their own error values, ok booleans or
// panics, as noted on each sentinel.
var (
	// ErrInvalidTransition names a transition result violating invariant I2
	// (terminal-state/reason consistency), a programming defect rather than
	// a bad event. The attack transition function panics on it instead.
	ErrInvalidTransition = errors.New("flow: invalid transition result")

	// ErrUnknownProfile names a requested policy profile with no matching
	// entry; policy.Set.Get reports that case with a false ok value.
	ErrUnknownProfile = errors.New("flow: unknown policy profile")

	// ErrMissingDefaultProfile names a policy file that omits the required
	// "default" profile; policy.Load reports it with its own error message.
	ErrMissingDefaultProfile = errors.New("flow: policy file missing required \"default\" profile")

	// ErrRingBufferOverflow signals an internal bug: the evidence ring
	// buffer must never be asked to hold more than its bound.
	ErrRingBufferOverflow = errors.New("flow: ring buffer exceeded its bound")

	// ErrNegativeElapsed names a negative delta_ms; Store.AddElapsedMs
	// panics on that input rather than returning this error.
	ErrNegativeElapsed = errors.New("flow: delta_ms must be non-negative")

	// ErrScenarioNotFound names a requested scenario ID absent from the
	// loaded set; scenario.Loader.Get reports it with a false ok value.
	ErrScenarioNotFound = errors.New("flow: scenario not found")

	// ErrNoBudgetRemaining names an attempt to consume a budget that has
	// already been exhausted.
	ErrNoBudgetRemaining = errors.New("flow: no budget remaining")
)
