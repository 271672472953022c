// Package main — cmd/flowsim/main.go
//
// flowsim is a Monte-Carlo containment simulator: it runs many synthetic
// ticketing sessions — a fixed happy-path event script with randomized
// timing jitter and a randomized chance of injecting bot-signal events —
// through both engines simultaneously, and estimates the probability that
// the Defense engine contains an escalating session (reaches tier T2 or
// renders a BLOCK action) before the Attack engine reaches SX with reason
// DONE.
//
// This generalizes cmd/octoreflex-sim's attacker-mutation-rate dominance
// check: where that tool simulated a single continuous mutation-rate
// process over many time steps, this tool simulates many independent
// session trials and reports the fraction Defense contained in time — the
// dominance condition here is P(contained) > containment-threshold.
//
// Output: per-trial CSV to stdout (trial, contained, final_tier,
// terminal_reason, steps_to_outcome).
// Summary: containment probability vs threshold, to stderr.
//
// Usage:
//
//	flowsim -trials 10000 -bot-signal-prob 0.35 -jitter-ms 250 -threshold 0.95
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/octoreflex/flowcore/internal/attack"
	"github.com/octoreflex/flowcore/internal/defense"
	"github.com/octoreflex/flowcore/internal/defense/brain"
	"github.com/octoreflex/flowcore/internal/flow"
	"github.com/octoreflex/flowcore/internal/gossip"
	"github.com/octoreflex/flowcore/internal/policy"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	trials := flag.Int("trials", 10000, "Number of simulated sessions")
	botSignalProb := flag.Float64("bot-signal-prob", 0.35, "Per-step probability of injecting a bot signal event")
	jitterMs := flag.Int64("jitter-ms", 250, "Max randomized per-event delay jitter, in milliseconds")
	threshold := flag.Float64("threshold", 0.95, "Required containment probability for the dominance condition to pass")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	gossipEnabled := flag.Bool("gossip-enabled", false, "Fold simulated peer-node quorum corroboration into tier decisions")
	gossipPeers := flag.Int("gossip-peers", 3, "Number of simulated peer nodes that may corroborate a bot signal")
	gossipQuorumMin := flag.Int("gossip-quorum-min", 2, "Unique corroborating nodes required for the quorum signal")
	gossipCorroborateProb := flag.Float64("gossip-corroborate-prob", 0.6, "Per-peer probability of corroborating an observed bot signal")
	flag.Parse()

	if *botSignalProb < 0 || *botSignalProb > 1 {
		fmt.Fprintln(os.Stderr, "ERROR: bot-signal-prob must be in [0, 1]")
		os.Exit(1)
	}
	if *threshold < 0 || *threshold > 1 {
		fmt.Fprintln(os.Stderr, "ERROR: threshold must be in [0, 1]")
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	pol := policy.Defaults().Default()

	var quorum *gossip.Quorum
	if *gossipEnabled {
		quorum = gossip.NewQuorum(*gossipQuorumMin, time.Minute)
	}
	sim := NewSimulator(pol, *botSignalProb, *jitterMs, rng, quorum, *gossipPeers, *gossipCorroborateProb)

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"trial", "contained", "final_tier", "terminal_reason", "steps_to_outcome"})

	contained := 0
	for i := 0; i < *trials; i++ {
		r := sim.RunTrial(fmt.Sprintf("sim-%d", i))
		containedInt := "0"
		if r.Contained {
			containedInt = "1"
			contained++
		}
		_ = w.Write([]string{
			strconv.Itoa(i),
			containedInt,
			r.FinalTier.String(),
			r.TerminalReason,
			strconv.Itoa(r.Steps),
		})
	}
	w.Flush()

	probability := float64(contained) / float64(*trials)

	fmt.Fprintf(os.Stderr, "\n=== CONTAINMENT DOMINANCE RESULT ===\n")
	fmt.Fprintf(os.Stderr, "Trials:                   %d\n", *trials)
	fmt.Fprintf(os.Stderr, "Contained before SX/DONE: %d (%.2f%%)\n", contained, probability*100)
	fmt.Fprintf(os.Stderr, "Required threshold:       %.2f%%\n", *threshold*100)

	if probability >= *threshold {
		fmt.Fprintf(os.Stderr, "RESULT: PASS — defense dominates the simulated attacker population\n")
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "RESULT: FAIL — containment probability below threshold\n")
	fmt.Fprintf(os.Stderr, "  Consider raising defense severity weights or lowering thresholds.\n")
	os.Exit(2)
}

// happyPath is the scripted event sequence a legitimate session would
// generate end to end; it is also the script a bot follows, except bot
// signal events may be interleaved between steps.
var happyPath = []flow.EventType{
	flow.EvFlowStart,
	flow.EvEntryEnabled,
	flow.EvEntryClicked,
	flow.EvQueueShown,
	flow.EvQueuePassed,
	flow.EvSectionListReady,
	flow.EvSectionSelected,
	flow.EvSeatmapReady,
	flow.EvSeatSelected,
	flow.EvHoldAcquired,
	flow.EvConfirmClicked,
	flow.EvPaymentPageEntered,
	flow.EvPaymentCompleted,
}

var botSignals = []flow.EventType{
	flow.EvSignalRepetitivePattern,
	flow.EvSignalTokenMismatch,
}

// TrialResult is the outcome of one simulated session.
type TrialResult struct {
	Contained      bool
	FinalTier      flow.DefenseTier
	TerminalReason string
	Steps          int
}

// Simulator drives one synthetic session through the Attack and Defense
// engines concurrently, under a fixed policy profile.
type Simulator struct {
	pol           policy.Profile
	botSignalProb float64
	jitterMs      int64
	rng           *rand.Rand

	// quorum, when non-nil, turns on gossip corroboration: each trial
	// reports its own bot-signal observations under sessionID, and
	// corroboratingPeers independent simulated peer nodes each
	// independently corroborate with probability corroborateProb,
	// mimicking other flowcore nodes watching the same session.
	quorum             *gossip.Quorum
	corroboratingPeers int
	corroborateProb    float64
}

// NewSimulator creates a configured Simulator. quorum may be nil to run
// the Defense brain pipeline on the discrete escalation rules alone.
func NewSimulator(pol policy.Profile, botSignalProb float64, jitterMs int64, rng *rand.Rand, quorum *gossip.Quorum, corroboratingPeers int, corroborateProb float64) *Simulator {
	return &Simulator{
		pol:                pol,
		botSignalProb:      botSignalProb,
		jitterMs:           jitterMs,
		rng:                rng,
		quorum:             quorum,
		corroboratingPeers: corroboratingPeers,
		corroborateProb:    corroborateProb,
	}
}

// RunTrial plays one randomized session, identified by sessionID, through
// both engines. Containment is declared the instant the Defense tier
// reaches T2 or a BLOCK action is rendered; the trial then stops early
// regardless of the Attack engine's remaining state.
func (s *Simulator) RunTrial(sessionID string) TrialResult {
	attackStore := flow.NewStore(nil, nil)
	attackStore.SetState(flow.S1)

	defenseState := flow.S1
	defenseCtx := defense.Context{}
	tier := flow.T0
	evidence := brain.EvidenceState{}

	var aggregator brain.Aggregator
	var risk brain.RiskController
	var planner brain.ActionPlanner
	var actuator brain.Actuator

	var pressure *brain.Pressure
	if s.quorum != nil {
		pressure = brain.NewPressure(0.3)
	}
	weights := brain.DefaultSeverityWeights()
	thresholds := brain.DefaultSeverityThresholds()

	var tsMs int64
	steps := 0
	blocked := false

	emit := func(eventType flow.EventType) (flow.State, flow.TerminalReason, bool) {
		steps++
		tsMs += s.rng.Int63n(s.jitterMs + 1)

		event := flow.SemanticEvent{
			Type:      eventType,
			SessionID: sessionID,
			Source:    flow.SourceMock,
			TsMs:      tsMs,
		}

		attackSnap := attackStore.Snapshot()
		if !attackSnap.CurrentState.IsTerminal() {
			attackStore.AddElapsedMs(s.rng.Int63n(s.jitterMs + 1))
			attackSnap = attackStore.Snapshot()
			attackResult := attack.Transition(attackSnap.CurrentState, event, s.pol, attackSnap)
			attackStore.SetState(attackResult.NextState)
			if attackResult.NextState.IsTerminal() {
				return attackResult.NextState, attackResult.TerminalReason, true
			}
		}

		if !defenseState.IsTerminal() {
			transResult := defense.Transition(defenseState, event, defenseCtx, s.pol)
			defenseCtx = transResult.Mutations.Apply(defenseCtx)
			defenseState = transResult.NextState

			evidence = aggregator.ProcessEvent(evidence, event)

			if s.quorum != nil {
				if event.Type == flow.EvFlowReset {
					pressure.Reset()
				}
				signalSeen := eventType == flow.EvSignalRepetitivePattern || eventType == flow.EvSignalTokenMismatch
				sig := brain.SignalFor(evidence, signalSeen)
				s.quorum.Record(sessionID, "local", sig)
				if signalSeen {
					for p := 0; p < s.corroboratingPeers; p++ {
						if s.rng.Float64() < s.corroborateProb {
							s.quorum.Record(sessionID, fmt.Sprintf("peer-%d", p), 1.0)
						}
					}
				}
				pressureScore := pressure.Update(sig)
				quorumSignal := s.quorum.Signal(sessionID)
				tier, _ = risk.DecideTierWithQuorum(evidence, tier, defenseState, event, quorumSignal, pressureScore, weights, thresholds)
			} else {
				tier, _ = risk.DecideTier(evidence, tier, defenseState, event)
			}

			plans := planner.Plan(tier, defenseState, evidence)
			for _, p := range plans {
				if p.Kind == flow.ActionBlock {
					blocked = true
				}
			}
			defEvents := actuator.Execute(plans, event, defenseCtx.IsSandboxed, nil)
			for _, de := range defEvents {
				if de.Type == flow.EvDefSandboxed {
					defenseCtx.IsSandboxed = true
				}
				secondary := defense.Transition(defenseState, de, defenseCtx, s.pol)
				defenseCtx = secondary.Mutations.Apply(defenseCtx)
				defenseState = secondary.NextState
			}

		}

		return flow.State(0), flow.TerminalReason(0), false
	}

	for _, eventType := range happyPath {
		if s.rng.Float64() < s.botSignalProb {
			sig := botSignals[s.rng.Intn(len(botSignals))]
			emit(sig)
			if blocked || tier.Rank() >= flow.T2.Rank() {
				return TrialResult{Contained: true, FinalTier: tier, TerminalReason: "CONTAINED", Steps: steps}
			}
		}

		_, reason, terminal := emit(eventType)
		if blocked || tier.Rank() >= flow.T2.Rank() {
			return TrialResult{Contained: true, FinalTier: tier, TerminalReason: "CONTAINED", Steps: steps}
		}
		if terminal {
			return TrialResult{Contained: false, FinalTier: tier, TerminalReason: reason.String(), Steps: steps}
		}
	}

	return TrialResult{Contained: false, FinalTier: tier, TerminalReason: "EXHAUSTED", Steps: steps}
}
