package flow

import (
	"fmt"

	"go.uber.org/zap"
)

// EventValidSet maps an EventType to the states it may legally fire in.
// Events missing from this map are treated as having no valid state (every
// state-validity check for them fails).
var EventValidSet = buildEventValidSet()

func buildEventValidSet() map[EventType]map[State]bool {
	all := statesOf(S0, S1, S2, S3, S4, S5, S6, SX)
	nonTerminal := statesOf(S0, S1, S2, S3, S4, S5, S6)
	securityInterruptible := statesOf(S1, S2, S4, S5, S6)
	_ = all

	m := map[EventType]map[State]bool{
		EvFlowStart:           statesOf(S0),
		EvFlowAbort:           nonTerminal,
		EvTimeout:             nonTerminal,
		EvSessionExpired:      nonTerminal,
		EvRetryBudgetExceeded: nonTerminal,
		EvFatalError:          nonTerminal,
		EvPolicyAbort:         nonTerminal,
		EvCooldownTriggered:   nonTerminal,

		EvEntryEnabled:  statesOf(S1),
		EvEntryNotReady: statesOf(S1),
		EvEntryBlocked:  statesOf(S1),
		EvEntryClicked:  statesOf(S1),
		EvQueueShown:    statesOf(S2),
		EvQueuePassed:   statesOf(S2),
		EvQueueStuck:    statesOf(S2),
		EvPopupOpened:   statesOf(S1, S2),

		EvChallengeAppeared:   statesOf(S3),
		EvChallengeDetected:   securityInterruptible,
		EvChallengePassed:     statesOf(S3),
		EvChallengeFailed:     statesOf(S3),
		EvChallengeNotPresent: statesOf(S3),

		EvSectionListReady: statesOf(S4),
		EvSectionSelected:  statesOf(S4),
		EvSectionEmpty:     statesOf(S4),

		EvSeatmapReady:   statesOf(S5),
		EvSeatSelected:   statesOf(S5),
		EvSeatTaken:      statesOf(S5),
		EvHoldAcquired:   statesOf(S5, S6),
		EvHoldFailed:     statesOf(S5, S6),
		EvConfirmClicked: statesOf(S5),

		EvPaymentPageEntered:  statesOf(S6),
		EvPaymentCompleted:    statesOf(S6),
		EvPaymentAborted:      statesOf(S6),
		EvPaymentTimeout:      statesOf(S6),
		EvTxnRollbackRequired: statesOf(S6),

		EvDefChallengeForced: securityInterruptible,
		EvDefThrottled:       securityInterruptible,
		EvDefSandboxed:       securityInterruptible,
		EvDefHoneyShaped:     securityInterruptible,
		EvSignalRepetitivePattern: nonTerminal,
		EvSignalTokenMismatch:     nonTerminal,
		EvRiskTierUpdated:         nonTerminal,
	}
	return m
}

func statesOf(states ...State) map[State]bool {
	m := make(map[State]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// IsValidInState reports whether eventType may legally fire while in state.
func IsValidInState(eventType EventType, state State) bool {
	return EventValidSet[eventType][state]
}

// ValidationResult is the outcome of validating one SemanticEvent.
type ValidationResult struct {
	IsValid   bool
	Errors    []string
	EventType EventType
}

// Success builds a passing ValidationResult.
func Success(eventType EventType) ValidationResult {
	return ValidationResult{IsValid: true, EventType: eventType}
}

// Failure builds a failing ValidationResult.
func Failure(eventType EventType, errors []string) ValidationResult {
	return ValidationResult{IsValid: false, Errors: errors, EventType: eventType}
}

// ValidationError is raised by Validator.Validate in strict mode.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("flow: validation failed: %v", e.Errors)
}

var validSources = map[EventSource]bool{
	SourceUI: true, SourceAPI: true, SourceTimer: true, SourceDefense: true, SourceMock: true,
}

var knownEventTypes = buildKnownEventTypes()

func buildKnownEventTypes() map[EventType]bool {
	m := make(map[EventType]bool, len(EventValidSet))
	for et := range EventValidSet {
		m[et] = true
	}
	// A few terminal/global events never gated by EVENT_VALID_STATES but
	// still part of the closed vocabulary.
	for _, et := range []EventType{
		EvFlowReset, EvDefBlocked,
	} {
		m[et] = true
	}
	return m
}

// Validator performs the two-layer pre-check (schema, then state-validity)
// that sits in front of the Attack and Defense transition functions. Its
// default policy is log-and-ignore: a failed validation yields
// is_valid=false rather than an error, so a caller who isn't running in
// strict mode can simply drop the event and move on.
type Validator struct {
	log    *zap.Logger
	Strict bool
}

// NewValidator builds a Validator. log may be nil, in which case a no-op
// logger is used.
func NewValidator(log *zap.Logger, strict bool) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log, Strict: strict}
}

// ValidateSchema checks that the event carries a known type, a known
// source (if set), and that Stage, if set, is a recognised State.
func (v *Validator) ValidateSchema(event SemanticEvent) ValidationResult {
	var errors []string

	if event.Type == "" {
		errors = append(errors, "event_type is required")
	} else if !knownEventTypes[event.Type] {
		errors = append(errors, fmt.Sprintf("unknown event_type: %s", event.Type))
	}

	if event.Source != "" && !validSources[event.Source] {
		errors = append(errors, fmt.Sprintf("invalid source: %s", event.Source))
	}

	if event.Stage != nil {
		if _, ok := ParseState(event.Stage.String()); !ok {
			errors = append(errors, fmt.Sprintf("invalid stage: %s", event.Stage))
		}
	}

	if len(errors) > 0 {
		return Failure(event.Type, errors)
	}
	return Success(event.Type)
}

// ValidateStateValidity checks that event.Type is permitted while the flow
// is in currentState, per EventValidSet.
func (v *Validator) ValidateStateValidity(event SemanticEvent, currentState State) ValidationResult {
	if !knownEventTypes[event.Type] {
		return Failure(event.Type, []string{fmt.Sprintf("unknown event_type for state-validity: %s", event.Type)})
	}
	if !IsValidInState(event.Type, currentState) {
		return Failure(event.Type, []string{fmt.Sprintf(
			"event %q is not valid in state %s", event.Type, currentState)})
	}
	return Success(event.Type)
}

// Validate runs schema validation followed by state-validity validation
// (skipped if schema validation already failed) and logs any failure. In
// strict mode a failure returns a *ValidationError instead of a result.
func (v *Validator) Validate(event SemanticEvent, currentState State) (ValidationResult, error) {
	var allErrors []string

	schemaResult := v.ValidateSchema(event)
	if !schemaResult.IsValid {
		allErrors = append(allErrors, schemaResult.Errors...)
	}

	if schemaResult.IsValid {
		stateResult := v.ValidateStateValidity(event, currentState)
		if !stateResult.IsValid {
			allErrors = append(allErrors, stateResult.Errors...)
		}
	}

	if len(allErrors) > 0 {
		v.log.Warn("event validation failed",
			zap.String("event_type", string(event.Type)),
			zap.String("state", currentState.String()),
			zap.Strings("errors", allErrors),
		)
		if v.Strict {
			return ValidationResult{}, &ValidationError{Errors: allErrors}
		}
		return Failure(event.Type, allErrors), nil
	}
	return Success(event.Type), nil
}
