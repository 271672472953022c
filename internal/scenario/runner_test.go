package scenario

import (
	"testing"
	"time"

	"github.com/octoreflex/flowcore/internal/defense/brain"
	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/gossip"
	"github.com/octoreflex/flowcore/internal/policy"
)

func happyPathScenario() Scenario {
	return Scenario{
		ID:            "SCN-01",
		Name:          "happy_path_purchase",
		InitialState:  flow.S1,
		PolicyProfile: "default",
		Events: []ScenarioEvent{
			{Type: flow.EvEntryEnabled, Source: flow.SourceUI},
			{Type: flow.EvEntryClicked, Source: flow.SourceUI},
			{Type: flow.EvQueuePassed, Source: flow.SourceUI},
			{Type: flow.EvChallengePassed, Source: flow.SourceAPI},
			{Type: flow.EvSectionSelected, Source: flow.SourceUI},
			{Type: flow.EvSeatSelected, Source: flow.SourceUI},
			{Type: flow.EvConfirmClicked, Source: flow.SourceUI},
			{Type: flow.EvHoldAcquired, Source: flow.SourceAPI},
			{Type: flow.EvPaymentCompleted, Source: flow.SourceAPI},
		},
		Accept: ScenarioAcceptance{
			FinalState: flow.SX,
			Asserts: []ScenarioAssertion{
				{Type: AssertTerminalReason, Value: "DONE"},
			},
		},
	}
}

func TestRunner_RunAttack_HappyPathReachesDone(t *testing.T) {
	runner := NewRunner(nil)
	pol := policy.Defaults().Default()

	result, err := runner.RunAttack(happyPathScenario(), pol)
	if err != nil {
		t.Fatalf("RunAttack: %v", err)
	}
	if result.TerminalState != flow.SX {
		t.Errorf("TerminalState = %v, want SX", result.TerminalState)
	}
	if result.TerminalReason != flow.ReasonDone {
		t.Errorf("TerminalReason = %v, want DONE", result.TerminalReason)
	}
}

func TestRunner_RunDefense_HappyPathReachesDone(t *testing.T) {
	runner := NewRunner(nil)
	pol := policy.Defaults().Default()

	steps := runner.RunDefense(happyPathScenario(), pol)
	if len(steps) == 0 {
		t.Fatal("expected at least one step")
	}
	last := steps[len(steps)-1]
	if last.ToState != flow.SX {
		t.Errorf("final ToState = %v, want SX", last.ToState)
	}
	if last.TerminalReason != flow.ReasonDone {
		t.Errorf("final TerminalReason = %v, want DONE", last.TerminalReason)
	}
}

func TestRunner_RunDefense_TierEscalatesWithRepetitiveSignals(t *testing.T) {
	scn := Scenario{
		ID:            "SCN-02",
		Name:          "bot_escalation_throttled",
		InitialState:  flow.S1,
		PolicyProfile: "default",
		Events: []ScenarioEvent{
			{Type: flow.EvEntryEnabled, Source: flow.SourceUI},
			{Type: flow.EvSignalRepetitivePattern, Source: flow.SourceDefense},
			{Type: flow.EvSignalRepetitivePattern, Source: flow.SourceDefense},
			{Type: flow.EvSignalRepetitivePattern, Source: flow.SourceDefense},
		},
		Accept: ScenarioAcceptance{
			FinalState: flow.S1,
			Asserts:    []ScenarioAssertion{{Type: AssertEventHandledCountAtLeast, Value: float64(1)}},
		},
	}

	runner := NewRunner(nil)
	pol := policy.Defaults().Default()
	steps := runner.RunDefense(scn, pol)
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}

	wantTiers := []flow.DefenseTier{flow.T0, flow.T1, flow.T1, flow.T2}
	for i, want := range wantTiers {
		if steps[i].ToTier != want {
			t.Errorf("step %d: ToTier = %v, want %v", i, steps[i].ToTier, want)
		}
	}

	last := steps[len(steps)-1]
	foundThrottle, foundChallenge := false, false
	for _, k := range last.PlannedActions {
		if k == flow.ActionThrottle {
			foundThrottle = true
		}
		if k == flow.ActionChallenge {
			foundChallenge = true
		}
	}
	if !foundThrottle || !foundChallenge {
		t.Errorf("step 3 (T2): PlannedActions = %v, want THROTTLE and CHALLENGE", last.PlannedActions)
	}
}

func TestRunner_RunDefense_WithQuorum_CorroborationRaisesOrHoldsTier(t *testing.T) {
	scn := Scenario{
		ID:            "SCN-QUORUM",
		Name:          "gossip_corroborated_escalation",
		InitialState:  flow.S1,
		PolicyProfile: "default",
		Events: []ScenarioEvent{
			{Type: flow.EvEntryEnabled, Source: flow.SourceUI},
			{Type: flow.EvSignalRepetitivePattern, Source: flow.SourceDefense},
			{Type: flow.EvSignalRepetitivePattern, Source: flow.SourceDefense},
		},
		Accept: ScenarioAcceptance{
			FinalState: flow.S1,
			Asserts:    []ScenarioAssertion{{Type: AssertEventHandledCountAtLeast, Value: float64(1)}},
		},
	}
	pol := policy.Defaults().Default()
	weights := brain.DefaultSeverityWeights()
	thresholds := brain.DefaultSeverityThresholds()

	uncorroborated := gossip.NewQuorum(2, time.Minute)
	plainRunner := NewRunnerWithQuorum(nil, uncorroborated, weights, thresholds, 0.3)
	plainSteps := plainRunner.RunDefense(scn, pol)

	corroborated := gossip.NewQuorum(2, time.Minute)
	corroborated.Record(scn.ID, "peer-a", 1.0)
	corroborated.Record(scn.ID, "peer-b", 1.0)
	corroboratedRunner := NewRunnerWithQuorum(nil, corroborated, weights, thresholds, 0.3)
	corroboratedSteps := corroboratedRunner.RunDefense(scn, pol)

	if len(plainSteps) != 3 || len(corroboratedSteps) != 3 {
		t.Fatalf("expected 3 steps each, got %d and %d", len(plainSteps), len(corroboratedSteps))
	}

	plainFinal := plainSteps[len(plainSteps)-1].ToTier
	corroboratedFinal := corroboratedSteps[len(corroboratedSteps)-1].ToTier
	if corroboratedFinal.Rank() < plainFinal.Rank() {
		t.Errorf("peer corroboration must never lower the decided tier: uncorroborated=%v corroborated=%v", plainFinal, corroboratedFinal)
	}
}

func TestRunner_RunDefense_WithQuorum_NilQuorumStillUsesPlainDecideTier(t *testing.T) {
	scn := happyPathScenario()

	runner := NewRunnerWithQuorum(nil, nil, brain.DefaultSeverityWeights(), brain.DefaultSeverityThresholds(), 0.3)
	pol := policy.Defaults().Default()
	steps := runner.RunDefense(scn, pol)
	last := steps[len(steps)-1]
	if last.TerminalReason != flow.ReasonDone {
		t.Errorf("final TerminalReason = %v, want DONE", last.TerminalReason)
	}
}
