package flow

// StateSnapshot is an immutable-by-convention copy of a StateStore's
// contents, passed into the pure transition functions so they never reach
// into mutable store internals.
type StateSnapshot struct {
	CurrentState         State
	LastNonSecurityState *State
	Budgets              map[string]int
	Counters             map[string]int
	ElapsedMs            int64
}

// Copy returns a deep copy: callers of transition functions must never be
// able to mutate a snapshot handed to them and have it leak back into the
// store.
func (s StateSnapshot) Copy() StateSnapshot {
	budgets := make(map[string]int, len(s.Budgets))
	for k, v := range s.Budgets {
		budgets[k] = v
	}
	counters := make(map[string]int, len(s.Counters))
	for k, v := range s.Counters {
		counters[k] = v
	}
	var last *State
	if s.LastNonSecurityState != nil {
		v := *s.LastNonSecurityState
		last = &v
	}
	return StateSnapshot{
		CurrentState:         s.CurrentState,
		LastNonSecurityState: last,
		Budgets:              budgets,
		Counters:             counters,
		ElapsedMs:            s.ElapsedMs,
	}
}
