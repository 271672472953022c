package scenario

import (
	"fmt"
	"sort"

	"github.com/octoreflex/flowcore/internal/attack"
	"github.com/octoreflex/flowcore/internal/flow"
)

// actionToDefEvent normalizes a scenario's plain action names ("BLOCK",
// "THROTTLE") to the DEF_* event type the Actuator actually emits, so an
// assertion can be written either way.
var actionToDefEvent = map[string]flow.EventType{
	"THROTTLE":  flow.EvDefThrottled,
	"BLOCK":     flow.EvDefBlocked,
	"CHALLENGE": flow.EvDefChallengeForced,
	"SANDBOX":   flow.EvDefSandboxed,
	"HONEY":     flow.EvDefHoneyShaped,
}

// counterKeyAliases maps a scenario's human counter names to the internal
// event-type keys the store actually accumulates counters under.
var counterKeyAliases = map[string]string{
	"seatTakenCount":     string(flow.EvSeatTaken),
	"retryCount":         string(flow.EvHoldFailed),
	"holdFailCount":      string(flow.EvHoldFailed),
	"challengeFailCount": string(flow.EvChallengeFailed),
}

// CheckAssertion evaluates a single ScenarioAssertion against an Attack
// engine ExecutionResult, returning whether it passed and a human-readable
// message describing why.
func CheckAssertion(a ScenarioAssertion, result attack.ExecutionResult) (bool, string) {
	desc := a.Description
	if desc == "" {
		desc = fmt.Sprintf("assertion %s", a.Type)
	}

	switch a.Type {
	case AssertTerminalReason:
		expected, _ := a.Value.(string)
		actual := result.TerminalReason.String()
		if actual == expected {
			return true, fmt.Sprintf("PASSED: %s (reason: %s)", desc, actual)
		}
		return false, fmt.Sprintf("FAILED: %s (expected %s, got %s)", desc, expected, actual)

	case AssertStatePathContains:
		targets := toStringSlice(a.Value)
		present := make(map[string]bool, len(result.StatePath))
		for _, s := range result.StatePath {
			present[s.String()] = true
		}
		var missing []string
		for _, t := range targets {
			if !present[t] {
				missing = append(missing, t)
			}
		}
		if len(missing) == 0 {
			return true, fmt.Sprintf("PASSED: %s (visited all of %v)", desc, targets)
		}
		return false, fmt.Sprintf("FAILED: %s (missing %v)", desc, missing)

	case AssertStatePathEquals:
		targets := toStringSlice(a.Value)
		actual := make([]string, len(result.StatePath))
		for i, s := range result.StatePath {
			actual[i] = s.String()
		}
		if stringSliceEqual(targets, actual) {
			return true, fmt.Sprintf("PASSED: %s", desc)
		}
		return false, fmt.Sprintf("FAILED: %s (expected %v, got %v)", desc, targets, actual)

	case AssertCounterAtLeast:
		key, minVal, ok := keyValPair(a.Value)
		if !ok {
			return false, fmt.Sprintf("FAILED: %s (invalid counter format %v)", desc, a.Value)
		}
		mapped := counterKeyAliases[key]
		if mapped == "" {
			mapped = key
		}
		actual := result.FinalCounters[mapped]
		if float64(actual) >= minVal {
			return true, fmt.Sprintf("PASSED: %s (%s=%d >= %v)", desc, key, actual, minVal)
		}
		return false, fmt.Sprintf("FAILED: %s (%s=%d < %v)", desc, key, actual, minVal)

	case AssertCounterEquals:
		key, target, ok := keyValPair(a.Value)
		if !ok {
			return false, fmt.Sprintf("FAILED: %s (invalid counter format %v)", desc, a.Value)
		}
		actual := result.FinalCounters[key]
		if float64(actual) == target {
			return true, fmt.Sprintf("PASSED: %s (%s=%d)", desc, key, actual)
		}
		return false, fmt.Sprintf("FAILED: %s (expected %s=%v, got %d)", desc, key, target, actual)

	case AssertBudgetRemainingAtMost:
		key, maxVal, ok := keyValPair(a.Value)
		if !ok {
			return false, fmt.Sprintf("FAILED: %s (invalid budget format %v)", desc, a.Value)
		}
		actual := result.FinalBudgets[key]
		if float64(actual) <= maxVal {
			return true, fmt.Sprintf("PASSED: %s (%s=%d <= %v)", desc, key, actual, maxVal)
		}
		return false, fmt.Sprintf("FAILED: %s (%s=%d > %v)", desc, key, actual, maxVal)

	case AssertEventHandledCountAtLeast:
		minVal, _ := a.Value.(float64)
		if float64(result.HandledEvents) >= minVal {
			return true, fmt.Sprintf("PASSED: %s (handled %d >= %v)", desc, result.HandledEvents, minVal)
		}
		return false, fmt.Sprintf("FAILED: %s (handled %d < %v)", desc, result.HandledEvents, minVal)

	case AssertReturnedToLastNonSecurity:
		return checkReturnedToLastNonSecurity(result.StatePath, desc)

	case AssertLogLinesAtLeast:
		return true, fmt.Sprintf("PASSED: %s (log line check not tracked by ExecutionResult, skipping)", desc)

	case AssertNoInvalidEvents:
		return true, fmt.Sprintf("PASSED: %s (invalid events not tracked by ExecutionResult, skipping)", desc)
	}

	return false, fmt.Sprintf("ERROR: unknown assertion type %q", a.Type)
}

func checkReturnedToLastNonSecurity(path []flow.State, desc string) (bool, string) {
	sawSecurity := false
	for _, s := range path {
		if s == flow.S3 {
			sawSecurity = true
			break
		}
	}
	if !sawSecurity {
		return true, fmt.Sprintf("PASSED: %s (S3 not visited, trivially passed)", desc)
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i] != flow.S3 {
			continue
		}
		next := path[i+1]
		if next == flow.SX {
			return false, fmt.Sprintf("FAILED: %s (S3 followed by SX instead of recovery)", desc)
		}
		if i == 0 || path[i-1] != next {
			return false, fmt.Sprintf("FAILED: %s (S3 returned to %s instead of the state it interrupted)", desc, next)
		}
	}
	return true, fmt.Sprintf("PASSED: %s (every S3 visit returned to the state it interrupted)", desc)
}

// StepVerification is the per-step outcome of comparing a Defense run's
// actual state/tier/actions against the scripted event's expectations.
type StepVerification struct {
	Seq        int
	Passed     bool
	Mismatches []string
}

// VerifyStep compares one Defense StepResult against its scripted
// expectations. A nil Expected* field means "no expectation, skip the
// check" — the step trivially passes that dimension. Action comparison is
// an order-independent subset check against the union of the step's
// planned actions and the DEF_* events actually emitted, with actions
// normalized through actionToDefEvent so a scenario can name either form.
func VerifyStep(step StepResult) (bool, []string) {
	var mismatches []string

	if step.ExpectedState != nil && *step.ExpectedState != step.ToState {
		mismatches = append(mismatches, fmt.Sprintf(
			"state mismatch: expected %s, got %s", step.ExpectedState, step.ToState))
	}

	if step.ExpectedTier != nil && *step.ExpectedTier != step.ToTier {
		mismatches = append(mismatches, fmt.Sprintf(
			"tier mismatch: expected %s, got %s", step.ExpectedTier, step.ToTier))
	}

	if step.ExpectedActions != nil {
		have := make(map[flow.EventType]bool, len(step.PlannedActions)+len(step.EmittedEventTypes))
		for _, k := range step.PlannedActions {
			if de, ok := actionToDefEvent[string(k)]; ok {
				have[de] = true
			}
		}
		for _, et := range step.EmittedEventTypes {
			have[et] = true
		}

		var missing []string
		for _, want := range step.ExpectedActions {
			de, ok := actionToDefEvent[want]
			if !ok {
				de = flow.EventType(want)
			}
			if !have[de] {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			mismatches = append(mismatches, fmt.Sprintf("missing expected actions: %v", missing))
		}
	}

	return len(mismatches) == 0, mismatches
}

// ScenarioReport aggregates a Defense run's per-step verifications.
type ScenarioReport struct {
	ScenarioID    string
	ScenarioTitle string
	TotalSteps    int
	PassedSteps   int
	FailedSteps   int
	Steps         []StepVerification
}

// AllPassed reports whether every step in the report passed.
func (r ScenarioReport) AllPassed() bool { return r.FailedSteps == 0 }

// VerifyScenario runs VerifyStep over every step of a Defense run and
// aggregates the result into a ScenarioReport.
func VerifyScenario(steps []StepResult, scenarioID, title string) ScenarioReport {
	report := ScenarioReport{
		ScenarioID:    scenarioID,
		ScenarioTitle: title,
		TotalSteps:    len(steps),
		Steps:         make([]StepVerification, 0, len(steps)),
	}
	for _, st := range steps {
		passed, mismatches := VerifyStep(st)
		report.Steps = append(report.Steps, StepVerification{
			Seq:        st.Seq,
			Passed:     passed,
			Mismatches: mismatches,
		})
		if passed {
			report.PassedSteps++
		} else {
			report.FailedSteps++
		}
	}
	return report
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	case string:
		return []string{t}
	default:
		return nil
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// keyValPair parses a [key, value] pair encoded as a two-element []any, the
// shape json.Unmarshal produces for a JSON array assertion value.
func keyValPair(v any) (string, float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return "", 0, false
	}
	key, ok := arr[0].(string)
	if !ok {
		return "", 0, false
	}
	val, ok := arr[1].(float64)
	if !ok {
		return "", 0, false
	}
	return key, val, true
}
