// Package scenario loads and executes acceptance-test scenario fixtures:
// scripted event sequences, run against both the Attack and Defense
// engines, checked against a declared set of expected outcomes.
//
// Scenario file: SCN-NN.json under a scenario directory, one file per
// scenario. Schema is documented on Scenario below.
package scenario

import (
	"fmt"
	"regexp"

	"github.com/octoreflex/flowcore/internal/flow"
)

var scenarioIDPattern = regexp.MustCompile(`^SCN-[0-9]{2}$`)

// AssertionType is the closed set of assertion kinds a scenario's Accept
// block may use to judge a run.
type AssertionType string

const (
	AssertStatePathContains         AssertionType = "state_path_contains"
	AssertStatePathEquals           AssertionType = "state_path_equals"
	AssertCounterAtLeast            AssertionType = "counter_at_least"
	AssertCounterEquals             AssertionType = "counter_equals"
	AssertBudgetRemainingAtMost     AssertionType = "budget_remaining_at_most"
	AssertEventHandledCountAtLeast  AssertionType = "event_handled_count_at_least"
	AssertReturnedToLastNonSecurity AssertionType = "returned_to_last_non_security_state"
	AssertLogLinesAtLeast           AssertionType = "log_lines_at_least"
	AssertNoInvalidEvents           AssertionType = "no_invalid_events"
	AssertTerminalReason            AssertionType = "terminal_reason"
)

// ScenarioEvent is one scripted event in a scenario's event list. The three
// Expected* fields are optional per-step predictions checked only by the
// Defense run — a scenario that only exercises the Attack engine leaves
// them nil and relies solely on the scenario-level Accept block.
type ScenarioEvent struct {
	Type            flow.EventType      `json:"type"`
	Source          flow.EventSource    `json:"source"`
	Stage           *flow.State         `json:"stage,omitempty"`
	DelayMs         int64               `json:"delay_ms"`
	Payload         map[string]any      `json:"payload,omitempty"`
	ExpectedState   *flow.State         `json:"expected_state,omitempty"`
	ExpectedTier    *flow.DefenseTier   `json:"expected_tier,omitempty"`
	ExpectedActions []string            `json:"expected_actions,omitempty"`
}

// ScenarioAssertion is a single expectation checked against the run result.
type ScenarioAssertion struct {
	Type        AssertionType `json:"type"`
	Value       any           `json:"value"`
	Description string        `json:"description,omitempty"`
}

// ScenarioAcceptance is the expected outcome of a scenario run.
type ScenarioAcceptance struct {
	FinalState     flow.State           `json:"final_state"`
	TerminalReason *flow.TerminalReason `json:"terminal_reason,omitempty"`
	Asserts        []ScenarioAssertion  `json:"asserts"`
}

// ScenarioMeta holds free-form scenario metadata (tags, authoring version).
type ScenarioMeta struct {
	Tags    []string `json:"tags,omitempty"`
	Version string   `json:"version,omitempty"`
}

// Scenario is the top-level acceptance-test fixture: an initial state, a
// policy profile to run under, a scripted event list, and the expected
// outcome.
type Scenario struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	InitialState   flow.State         `json:"initial_state"`
	PolicyProfile  string             `json:"policy_profile"`
	Events         []ScenarioEvent    `json:"events"`
	Accept         ScenarioAcceptance `json:"accept"`
	Meta           ScenarioMeta       `json:"meta,omitempty"`
}

// Validate checks the structural invariants a loaded Scenario must satisfy
// beyond what JSON unmarshalling alone guarantees: a well-formed ID, at
// least one event, and at least one assertion.
func (s Scenario) Validate() error {
	if !scenarioIDPattern.MatchString(s.ID) {
		return fmt.Errorf("scenario: id %q does not match pattern SCN-NN", s.ID)
	}
	if len(s.Name) < 3 {
		return fmt.Errorf("scenario %s: name must be at least 3 characters", s.ID)
	}
	if s.PolicyProfile == "" {
		return fmt.Errorf("scenario %s: policy_profile must not be empty", s.ID)
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("scenario %s: events must not be empty", s.ID)
	}
	for i, e := range s.Events {
		if len(e.Type) < 3 {
			return fmt.Errorf("scenario %s: events[%d].type must be at least 3 characters", s.ID, i)
		}
		if e.DelayMs < 0 {
			return fmt.Errorf("scenario %s: events[%d].delay_ms must be >= 0", s.ID, i)
		}
	}
	if len(s.Accept.Asserts) == 0 {
		return fmt.Errorf("scenario %s: accept.asserts must not be empty", s.ID)
	}
	return nil
}
