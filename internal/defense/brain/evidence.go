// Package brain implements the Defense engine's four-stage pipeline:
// Aggregator collects signal evidence, RiskController assigns a tier from
// that evidence, ActionPlanner turns a tier into a set of planned actions,
// and Actuator renders those plans into concrete Defense events.
package brain

import (
	"strings"

	"github.com/octoreflex/flowcore/internal/flow"
)

// ringBufferBound is the maximum length of EvidenceState.SignalHistory
// (invariant I9).
const ringBufferBound = 10

// EvidenceState is the cumulative evidence the Aggregator maintains across
// a run: counts and streaks consulted by RiskController, plus a bounded
// ring buffer of the last SIGNAL_* event types seen.
type EvidenceState struct {
	LastSignalTs         int64
	ChallengeFailCount   int
	SeatTakenStreak      int
	SignalHistory        []flow.EventType
	TokenMismatchDetected bool
}

// Copy returns an independent copy — SignalHistory is backed by its own
// slice, so appending to the copy never touches the original.
func (s EvidenceState) Copy() EvidenceState {
	history := make([]flow.EventType, len(s.SignalHistory))
	copy(history, s.SignalHistory)
	s.SignalHistory = history
	return s
}

func (s *EvidenceState) pushSignal(eventType flow.EventType) {
	s.SignalHistory = append(s.SignalHistory, eventType)
	if len(s.SignalHistory) > ringBufferBound {
		s.SignalHistory = s.SignalHistory[len(s.SignalHistory)-ringBufferBound:]
	}
}

var s5FailureEvents = map[flow.EventType]bool{
	flow.EvSeatTaken:  true,
	flow.EvHoldFailed: true,
}

var s5SuccessEvents = map[flow.EventType]bool{
	flow.EvSeatSelected: true,
}

const signalPrefix = "SIGNAL_"

// Aggregator turns incoming events into updated EvidenceState. ProcessEvent
// is pure: it never mutates the EvidenceState handed to it, always
// returning an independent copy with the update applied.
type Aggregator struct{}

// ProcessEvent applies one event's effect to state and returns the result
// as a new EvidenceState (rules F-1, F-3 plus token-mismatch and
// signal-history bookkeeping).
func (Aggregator) ProcessEvent(state EvidenceState, event flow.SemanticEvent) EvidenceState {
	next := state.Copy()
	next.LastSignalTs = event.TsMs

	switch {
	case event.Type == flow.EvChallengeFailed:
		next.ChallengeFailCount++
	case event.Type == flow.EvChallengePassed:
		next.ChallengeFailCount = 0
	case s5FailureEvents[event.Type]:
		next.SeatTakenStreak++
	case s5SuccessEvents[event.Type]:
		next.SeatTakenStreak = 0
	}

	if event.Type == flow.EvSignalTokenMismatch {
		next.TokenMismatchDetected = true
	}

	if strings.HasPrefix(string(event.Type), signalPrefix) {
		next.pushSignal(event.Type)
	}

	return next
}
