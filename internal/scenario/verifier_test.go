package scenario

import (
	"testing"

	"github.com/octoreflex/flowcore/internal/attack"
	"github.com/octoreflex/flowcore/internal/flow"
)

func TestCheckAssertion_TerminalReason(t *testing.T) {
	result := attack.ExecutionResult{TerminalReason: flow.ReasonDone}
	passed, _ := CheckAssertion(ScenarioAssertion{Type: AssertTerminalReason, Value: "DONE"}, result)
	if !passed {
		t.Error("expected terminal_reason DONE to pass against a DONE result")
	}
	passed, _ = CheckAssertion(ScenarioAssertion{Type: AssertTerminalReason, Value: "ABORT"}, result)
	if passed {
		t.Error("expected terminal_reason ABORT to fail against a DONE result")
	}
}

func TestCheckAssertion_StatePathContains(t *testing.T) {
	result := attack.ExecutionResult{StatePath: []flow.State{flow.S1, flow.S2, flow.S4, flow.S5}}
	passed, _ := CheckAssertion(ScenarioAssertion{
		Type: AssertStatePathContains, Value: []any{"S4", "S5"},
	}, result)
	if !passed {
		t.Error("expected state_path_contains [S4, S5] to pass")
	}
	passed, _ = CheckAssertion(ScenarioAssertion{
		Type: AssertStatePathContains, Value: []any{"S6"},
	}, result)
	if passed {
		t.Error("expected state_path_contains [S6] to fail (never visited)")
	}
}

func TestCheckAssertion_CounterAtLeast(t *testing.T) {
	result := attack.ExecutionResult{FinalCounters: map[string]int{"SEAT_TAKEN": 3}}
	passed, _ := CheckAssertion(ScenarioAssertion{
		Type: AssertCounterAtLeast, Value: []any{"SEAT_TAKEN", float64(2)},
	}, result)
	if !passed {
		t.Error("expected counter_at_least 2 to pass against actual 3")
	}
	passed, _ = CheckAssertion(ScenarioAssertion{
		Type: AssertCounterAtLeast, Value: []any{"SEAT_TAKEN", float64(5)},
	}, result)
	if passed {
		t.Error("expected counter_at_least 5 to fail against actual 3")
	}
}

func TestCheckAssertion_UnknownType(t *testing.T) {
	passed, msg := CheckAssertion(ScenarioAssertion{Type: "nonsense"}, attack.ExecutionResult{})
	if passed {
		t.Error("unknown assertion type must not pass")
	}
	if msg == "" {
		t.Error("unknown assertion type must explain why")
	}
}

func tier(t flow.DefenseTier) *flow.DefenseTier { return &t }
func state(s flow.State) *flow.State            { return &s }

func TestVerifyStep_NilExpectationsTriviallyPass(t *testing.T) {
	step := StepResult{ToState: flow.S4, ToTier: flow.T1}
	passed, mismatches := VerifyStep(step)
	if !passed || len(mismatches) != 0 {
		t.Errorf("expected a step with no expectations to trivially pass, got %v", mismatches)
	}
}

func TestVerifyStep_StateMismatch(t *testing.T) {
	step := StepResult{ToState: flow.S2, ExpectedState: state(flow.S4)}
	passed, mismatches := VerifyStep(step)
	if passed {
		t.Fatal("expected a state mismatch to fail")
	}
	if len(mismatches) != 1 {
		t.Errorf("expected exactly one mismatch, got %v", mismatches)
	}
}

func TestVerifyStep_TierMismatch(t *testing.T) {
	step := StepResult{ToTier: flow.T0, ExpectedTier: tier(flow.T1)}
	passed, _ := VerifyStep(step)
	if passed {
		t.Error("expected a tier mismatch to fail")
	}
}

func TestVerifyStep_ActionsSubsetCheck_OrderIndependent(t *testing.T) {
	step := StepResult{
		PlannedActions:  []flow.ActionKind{flow.ActionChallenge, flow.ActionThrottle},
		ExpectedActions: []string{"THROTTLE", "CHALLENGE"},
	}
	passed, mismatches := VerifyStep(step)
	if !passed {
		t.Errorf("expected order-independent subset match to pass, got %v", mismatches)
	}
}

func TestVerifyStep_MissingAction(t *testing.T) {
	step := StepResult{
		PlannedActions:  []flow.ActionKind{flow.ActionThrottle},
		ExpectedActions: []string{"THROTTLE", "BLOCK"},
	}
	passed, mismatches := VerifyStep(step)
	if passed {
		t.Fatal("expected a missing action to fail")
	}
	if len(mismatches) != 1 {
		t.Errorf("expected exactly one mismatch, got %v", mismatches)
	}
}

func TestVerifyScenario_AggregatesPassFailCounts(t *testing.T) {
	steps := []StepResult{
		{Seq: 0, ToState: flow.S1, ExpectedState: state(flow.S1)},
		{Seq: 1, ToState: flow.S2, ExpectedState: state(flow.S4)},
	}
	report := VerifyScenario(steps, "SCN-99", "test scenario")
	if report.TotalSteps != 2 || report.PassedSteps != 1 || report.FailedSteps != 1 {
		t.Errorf("report = %+v, want 2 total / 1 pass / 1 fail", report)
	}
	if report.AllPassed() {
		t.Error("AllPassed must be false when any step failed")
	}
}
