// Package defense implements the Defense engine: a pure transition
// function mirroring the Attack engine's state graph but with its own
// escalation overrides, plus the secondary-pass orchestrator that drives a
// scripted run and lets the risk/plan/actuate pipeline (internal/defense/brain)
// react to each step.
package defense

import "github.com/octoreflex/flowcore/internal/flow"

// Context is the mutable bookkeeping the Defense transition function
// consults and updates on every call. Transition never mutates a Context
// in place — it returns a Mutations map describing only the fields that
// changed, so callers can apply them to their own copy.
type Context struct {
	LastNonSecurityState *flow.State
	ChallengeFailCount   int
	SeatTakenCount       int
	HoldFailCount        int
	SessionAge           int64
	IsSandboxed          bool
	RetryCount           int
}

// Clone returns an independent copy.
func (c Context) Clone() Context {
	var last *flow.State
	if c.LastNonSecurityState != nil {
		v := *c.LastNonSecurityState
		last = &v
	}
	c.LastNonSecurityState = last
	return c
}

// Action is one defense action emitted alongside a transition.
type Action struct {
	Type    flow.ActionKind
	Payload map[string]any
}

// Mutations describes the Context fields a transition wants changed. Only
// keys present are applied; absent keys mean "unchanged".
type Mutations map[string]any

// Apply returns a new Context with m's changes applied on top of c.
func (m Mutations) Apply(c Context) Context {
	next := c.Clone()
	for field, value := range m {
		switch field {
		case "challenge_fail_count":
			next.ChallengeFailCount = value.(int)
		case "seat_taken_count":
			next.SeatTakenCount = value.(int)
		case "hold_fail_count":
			next.HoldFailCount = value.(int)
		case "last_non_security_state":
			if value == nil {
				next.LastNonSecurityState = nil
			} else {
				s := value.(flow.State)
				next.LastNonSecurityState = &s
			}
		case "is_sandboxed":
			next.IsSandboxed = value.(bool)
		case "session_age":
			next.SessionAge = value.(int64)
		case "retry_count":
			next.RetryCount = value.(int)
		}
	}
	return next
}
