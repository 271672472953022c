package scenario

import (
	"fmt"

	"github.com/octoreflex/flowcore/internal/attack"
	"github.com/octoreflex/flowcore/internal/defense"
	"github.com/octoreflex/flowcore/internal/defense/brain"
	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/gossip"
	"github.com/octoreflex/flowcore/internal/policy"
)

// localNodeID is the node identity this process reports under when it
// records its own risk observations into a shared Quorum. A real gossip
// transport would additionally relay peer nodes' observations into the
// same Quorum under their own IDs.
const localNodeID = "local"

// StepResult is one step of a Defense scenario run: the event handled, the
// flow-state and tier transition it produced, the actions the brain
// pipeline planned and emitted, and any terminal outcome.
type StepResult struct {
	Seq               int
	InputEventType    flow.EventType
	FromState         flow.State
	ToState           flow.State
	FromTier          flow.DefenseTier
	ToTier            flow.DefenseTier
	PlannedActions    []flow.ActionKind
	EmittedEventTypes []flow.EventType
	TerminalReason    flow.TerminalReason
	FailureCode       flow.FailureCode

	// Expected* mirror the scripting event's predictions, carried through
	// so the verifier can diff them without re-reading the scenario.
	ExpectedState   *flow.State
	ExpectedTier    *flow.DefenseTier
	ExpectedActions []string
}

// Runner executes a loaded Scenario against both engines: the Attack
// engine's happy-path-with-failure-recovery transition function, and the
// Defense engine's transition-plus-brain pipeline. The two runs are
// independent — they mirror how the system's two halves are verified
// separately — and a scenario fixture can be checked against either or
// both result sets.
type Runner struct {
	limiter brain.RateLimiter // optional; nil means no budget gating

	// quorum, when non-nil, switches RunDefense from RiskController.DecideTier
	// to DecideTierWithQuorum: this node's own observation is recorded into
	// quorum and folded, alongside an EWMA pressure accumulator, into the
	// composite severity score that can escalate a tier the discrete rules
	// alone would not have reached.
	quorum             *gossip.Quorum
	severityWeights    brain.SeverityWeights
	severityThresholds brain.SeverityThresholds
	pressureAlpha      float64
}

// NewRunner creates a Runner. limiter may be nil to run the Defense brain
// pipeline without budget-gating its actions. The Defense run uses the
// plain discrete-rule DecideTier; use NewRunnerWithQuorum to additionally
// fold in gossip corroboration and EWMA pressure.
func NewRunner(limiter brain.RateLimiter) *Runner {
	return &Runner{limiter: limiter}
}

// NewRunnerWithQuorum creates a Runner whose Defense run consults quorum
// and a per-session pressure accumulator alongside the discrete escalation
// rules, via RiskController.DecideTierWithQuorum. weights/thresholds tune
// the composite severity formula; pressureAlpha is the EWMA smoothing
// factor for the per-session Pressure accumulator (see brain.NewPressure).
func NewRunnerWithQuorum(
	limiter brain.RateLimiter,
	quorum *gossip.Quorum,
	weights brain.SeverityWeights,
	thresholds brain.SeverityThresholds,
	pressureAlpha float64,
) *Runner {
	return &Runner{
		limiter:            limiter,
		quorum:             quorum,
		severityWeights:    weights,
		severityThresholds: thresholds,
		pressureAlpha:      pressureAlpha,
	}
}

func toSemanticEvent(scn Scenario, se ScenarioEvent, tsMs int64) flow.SemanticEvent {
	return flow.SemanticEvent{
		Type:      se.Type,
		SessionID: scn.ID,
		Source:    se.Source,
		Stage:     se.Stage,
		TsMs:      tsMs,
		DelayMs:   se.DelayMs,
		Payload:   se.Payload,
	}
}

// RunAttack drives a scenario's event list through the Attack engine,
// advancing the store's virtual clock by each event's delay_ms before the
// transition is evaluated, mirroring the acceptance harness's virtual-time
// simulation. Stops after the first event that reaches either a terminal
// state or the scenario's Accept.FinalState, and returns an error if the
// event list is exhausted without reaching either.
func (r *Runner) RunAttack(scn Scenario, pol policy.Profile) (attack.ExecutionResult, error) {
	store := flow.NewStore(nil, nil)
	store.SetState(scn.InitialState)

	statePath := []flow.State{scn.InitialState}
	handledEvents := 0
	var lastResult attack.TransitionResult
	haveResult := false
	var tsMs int64

	for _, se := range scn.Events {
		snap := store.Snapshot()
		currentState := snap.CurrentState
		if currentState.IsTerminal() {
			break
		}

		tsMs = store.AddElapsedMs(se.DelayMs)
		snap = store.Snapshot()

		event := toSemanticEvent(scn, se, tsMs)
		result := attack.Transition(currentState, event, pol, snap)
		lastResult = result
		haveResult = true

		nextState := result.NextState
		store.SetState(nextState)
		if nextState.IsSecurity() && currentState.CanBeLastNonSecurity() {
			cur := currentState
			store.SetLastNonSecurityState(&cur)
		}
		if statePath[len(statePath)-1] != nextState {
			statePath = append(statePath, nextState)
		}
		store.IncrementCounter(string(event.Type), 1)
		handledEvents++

		if nextState.IsTerminal() || nextState == scn.Accept.FinalState {
			break
		}
	}

	finalSnap := store.Snapshot()
	if !finalSnap.CurrentState.IsTerminal() && finalSnap.CurrentState != scn.Accept.FinalState {
		return attack.ExecutionResult{}, fmt.Errorf(
			"scenario %s: event list exhausted without reaching a terminal or accepted state (current=%s)",
			scn.ID, finalSnap.CurrentState)
	}

	terminalReason := flow.ReasonDone
	if haveResult && lastResult.TerminalReason != flow.ReasonNone {
		terminalReason = lastResult.TerminalReason
	} else if !finalSnap.CurrentState.IsTerminal() {
		terminalReason = flow.ReasonNone
	}

	return attack.ExecutionResult{
		StatePath:      statePath,
		TerminalState:  finalSnap.CurrentState,
		TerminalReason: terminalReason,
		HandledEvents:  handledEvents,
		TotalElapsedMs: finalSnap.ElapsedMs,
		FinalBudgets:   finalSnap.Budgets,
		FinalCounters:  finalSnap.Counters,
	}, nil
}

// RunDefense drives a scenario's event list through the Defense engine's
// transition function and brain pipeline (Aggregator -> RiskController ->
// ActionPlanner -> Actuator), feeding any emitted DEF_* events back through
// a secondary transition the way the scenario's secondary pass does,
// recording one StepResult per scripted event.
func (r *Runner) RunDefense(scn Scenario, pol policy.Profile) []StepResult {
	state := scn.InitialState
	tier := flow.T0
	ctx := defense.Context{}
	evidence := brain.EvidenceState{}

	var aggregator brain.Aggregator
	var risk brain.RiskController
	var planner brain.ActionPlanner
	var actuator brain.Actuator

	var pressure *brain.Pressure
	if r.quorum != nil {
		pressure = brain.NewPressure(r.pressureAlpha)
	}

	results := make([]StepResult, 0, len(scn.Events))
	var tsMs int64

	for seq, se := range scn.Events {
		if state.IsTerminal() {
			break
		}
		fromState := state
		fromTier := tier
		tsMs += se.DelayMs

		event := toSemanticEvent(scn, se, tsMs)

		transResult := defense.Transition(state, event, ctx, pol)
		ctx = transResult.Mutations.Apply(ctx)
		state = transResult.NextState

		evidence = aggregator.ProcessEvent(evidence, event)
		var tierUpdate *brain.TierUpdate
		if r.quorum != nil {
			if event.Type == flow.EvFlowReset {
				pressure.Reset()
			}
			signalSeen := event.Type == flow.EvSignalRepetitivePattern || event.Type == flow.EvSignalTokenMismatch
			r.quorum.Record(scn.ID, localNodeID, brain.SignalFor(evidence, signalSeen))
			pressureScore := pressure.Update(brain.SignalFor(evidence, signalSeen))
			quorumSignal := r.quorum.Signal(scn.ID)
			tier, tierUpdate = risk.DecideTierWithQuorum(
				evidence, tier, state, event, quorumSignal, pressureScore,
				r.severityWeights, r.severityThresholds)
		} else {
			tier, tierUpdate = risk.DecideTier(evidence, tier, state, event)
		}
		_ = tierUpdate

		plans := planner.Plan(tier, state, evidence)
		plannedKinds := make([]flow.ActionKind, 0, len(plans))
		for _, p := range plans {
			plannedKinds = append(plannedKinds, p.Kind)
		}

		defEvents := actuator.Execute(plans, event, ctx.IsSandboxed, r.limiter)
		emittedTypes := make([]flow.EventType, 0, len(defEvents))
		for _, de := range defEvents {
			emittedTypes = append(emittedTypes, de.Type)
			if de.Type == flow.EvDefSandboxed {
				ctx.IsSandboxed = true
			}
			secondary := defense.Transition(state, de, ctx, pol)
			ctx = secondary.Mutations.Apply(ctx)
			state = secondary.NextState
			if secondary.TerminalReason != flow.ReasonNone {
				transResult = secondary
			}
		}

		results = append(results, StepResult{
			Seq:               seq,
			InputEventType:    event.Type,
			FromState:         fromState,
			ToState:           state,
			FromTier:          fromTier,
			ToTier:            tier,
			PlannedActions:    plannedKinds,
			EmittedEventTypes: emittedTypes,
			TerminalReason:    transResult.TerminalReason,
			FailureCode:       transResult.FailureCode,
			ExpectedState:     se.ExpectedState,
			ExpectedTier:      se.ExpectedTier,
			ExpectedActions:   se.ExpectedActions,
		})

		if state.IsTerminal() {
			break
		}
	}

	return results
}
