package flow

import (
	"encoding/json"
	"fmt"
)

// EventType is the closed vocabulary of semantic events the Attack and
// Defense engines exchange. Category suffixes and stage prefixes are
// deliberately dropped so the same type works for both engines.
type EventType string

const (
	// Flow
	EvFlowStart           EventType = "FLOW_START"
	EvFlowAbort           EventType = "FLOW_ABORT"
	EvTimeout             EventType = "TIMEOUT"
	EvSessionExpired      EventType = "SESSION_EXPIRED"
	EvRetryBudgetExceeded EventType = "RETRY_BUDGET_EXCEEDED"
	EvFatalError          EventType = "FATAL_ERROR"
	EvPolicyAbort         EventType = "POLICY_ABORT"
	EvCooldownTriggered   EventType = "COOLDOWN_TRIGGERED"
	EvFlowReset           EventType = "FLOW_RESET"

	// Entry / Queue
	EvEntryEnabled  EventType = "ENTRY_ENABLED"
	EvEntryNotReady EventType = "ENTRY_NOT_READY"
	EvEntryBlocked  EventType = "ENTRY_BLOCKED"
	EvEntryClicked  EventType = "ENTRY_CLICKED"
	EvQueueShown    EventType = "QUEUE_SHOWN"
	EvQueuePassed   EventType = "QUEUE_PASSED"
	EvQueueStuck    EventType = "QUEUE_STUCK"
	EvPopupOpened   EventType = "POPUP_OPENED"

	// Security
	EvChallengeAppeared   EventType = "CHALLENGE_APPEARED"
	EvChallengeDetected   EventType = "CHALLENGE_DETECTED"
	EvChallengePassed     EventType = "CHALLENGE_PASSED"
	EvChallengeFailed     EventType = "CHALLENGE_FAILED"
	EvChallengeNotPresent EventType = "CHALLENGE_NOT_PRESENT"

	// Section
	EvSectionListReady EventType = "SECTION_LIST_READY"
	EvSectionSelected  EventType = "SECTION_SELECTED"
	EvSectionEmpty     EventType = "SECTION_EMPTY"

	// Seat
	EvSeatmapReady   EventType = "SEATMAP_READY"
	EvSeatSelected   EventType = "SEAT_SELECTED"
	EvSeatTaken      EventType = "SEAT_TAKEN"
	EvHoldAcquired   EventType = "HOLD_ACQUIRED"
	EvHoldFailed     EventType = "HOLD_FAILED"
	EvConfirmClicked EventType = "CONFIRM_CLICKED"

	// Transaction
	EvPaymentPageEntered  EventType = "PAYMENT_PAGE_ENTERED"
	EvPaymentCompleted    EventType = "PAYMENT_COMPLETED"
	EvPaymentAborted      EventType = "PAYMENT_ABORTED"
	EvPaymentTimeout      EventType = "PAYMENT_TIMEOUT"
	EvTxnRollbackRequired EventType = "TXN_ROLLBACK_REQUIRED"

	// Defense-specific signals and actions
	EvSignalRepetitivePattern EventType = "SIGNAL_REPETITIVE_PATTERN"
	EvSignalTokenMismatch     EventType = "SIGNAL_TOKEN_MISMATCH"
	EvDefChallengeForced      EventType = "DEF_CHALLENGE_FORCED"
	EvDefThrottled            EventType = "DEF_THROTTLED"
	EvDefSandboxed            EventType = "DEF_SANDBOXED"
	EvDefBlocked              EventType = "DEF_BLOCKED"
	EvDefHoneyShaped          EventType = "DEF_HONEY_SHAPED"
	EvRiskTierUpdated         EventType = "RISK_TIER_UPDATED"
)

// EventSource identifies who raised an event.
type EventSource string

const (
	SourceUI      EventSource = "UI"
	SourceAPI     EventSource = "API"
	SourceTimer   EventSource = "TIMER"
	SourceDefense EventSource = "DEFENSE"
	SourceMock    EventSource = "MOCK"
)

// SemanticEvent is the standardized unit both engines consume. Stage, when
// present, carries the state the event claims to originate from; the
// transition functions do not read it and always work from the state they
// are handed (forward jumps are decided by event type alone).
type SemanticEvent struct {
	Type        EventType
	EventID     string
	SessionID   string
	Source      EventSource
	Stage       *State
	FailureCode string
	Payload     map[string]any
	TsMs        int64
	DelayMs     int64
}

func (e SemanticEvent) String() string {
	return fmt.Sprintf("SemanticEvent{type=%s id=%s stage=%v}", e.Type, e.EventID, e.Stage)
}

// DefenseTier is the four-level escalation ladder the Defense brain assigns.
// Tiers are ordered T0 < T1 < T2 < T3 and, outside the single decay rule
// R-4, never move down (invariant I6).
type DefenseTier uint8

const (
	T0 DefenseTier = iota
	T1
	T2
	T3
)

func (t DefenseTier) String() string {
	switch t {
	case T0:
		return "T0"
	case T1:
		return "T1"
	case T2:
		return "T2"
	case T3:
		return "T3"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Rank returns the tier's position on the escalation ladder for ordering
// comparisons (higher rank never regresses except via the R-4 decay rule).
func (t DefenseTier) Rank() int { return int(t) }

// ParseDefenseTier parses the canonical "T0".."T3" form.
func ParseDefenseTier(s string) (DefenseTier, bool) {
	switch s {
	case "T0":
		return T0, true
	case "T1":
		return T1, true
	case "T2":
		return T2, true
	case "T3":
		return T3, true
	default:
		return 0, false
	}
}

// MarshalJSON renders DefenseTier in its canonical "T0".."T3" string form.
func (t DefenseTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses DefenseTier from its canonical string form.
func (t *DefenseTier) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := ParseDefenseTier(raw)
	if !ok {
		return fmt.Errorf("flow: invalid DefenseTier %q", raw)
	}
	*t = parsed
	return nil
}

// ActionKind is the closed set of actions the Defense actuator can emit.
type ActionKind string

const (
	ActionNone      ActionKind = "NONE"
	ActionThrottle  ActionKind = "THROTTLE"
	ActionChallenge ActionKind = "CHALLENGE"
	ActionSandbox   ActionKind = "SANDBOX"
	ActionBlock     ActionKind = "BLOCK"
	ActionHoney     ActionKind = "HONEY" // reserved, never emitted by the planner
)

// ActionIntensity qualifies THROTTLE and CHALLENGE actions.
type ActionIntensity string

const (
	IntensityLight  ActionIntensity = "light"
	IntensityMedium ActionIntensity = "medium"
	IntensityStrong ActionIntensity = "strong"
)
