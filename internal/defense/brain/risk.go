package brain

import (
	"fmt"

	"github.com/octoreflex/flowcore/internal/flow"
)

// Fixed PoC-0 thresholds for the built-in escalation rules. A richer
// deployment would source these from the policy profile; these stay
// constant here because the rules they gate (R-1..R-3) are definitional,
// not tunable, parts of the risk model this engine implements.
const (
	challengeFailThreshold        = 3
	repetitivePatternT1Threshold  = 1
	repetitivePatternT2Threshold  = 3
)

// RiskController evaluates accumulated EvidenceState to determine the
// DefenseTier a run should sit at, applying rules R-1 through R-4 (spec
// §4.7's tier-assignment logic).
type RiskController struct{}

// TierUpdate is returned by DecideTier when the tier actually changed.
type TierUpdate struct {
	From flow.DefenseTier
	To   flow.DefenseTier
}

// DecideTier evaluates evidence against the current tier and flow state,
// returning the resulting tier and, if it changed, the transition that
// occurred. DecideTier is pure — it mutates nothing it's handed.
func (RiskController) DecideTier(
	evidence EvidenceState,
	currentTier flow.DefenseTier,
	currentFlowState flow.State,
	event flow.SemanticEvent,
) (flow.DefenseTier, *TierUpdate) {
	targetTier := evaluateEscalationRules(evidence)

	if targetTier.Rank() < currentTier.Rank() {
		// No drop allowed outside the R-4 decay path evaluated below.
		targetTier = currentTier
	}

	if shouldDecay(currentTier, currentFlowState, event) {
		targetTier = flow.T1
	}

	if targetTier != currentTier {
		return targetTier, &TierUpdate{From: currentTier, To: targetTier}
	}
	return currentTier, nil
}

// DecideTierWithQuorum behaves like DecideTier but additionally folds in
// the composite severity score (quorum corroboration and EWMA pressure,
// alongside the same repetitive-pattern and token-integrity evidence the
// discrete rules use) — whichever of the discrete rules or the composite
// score calls for the higher tier wins. This lets a sustained low-grade
// signal that never crosses a discrete rule's threshold alone still
// escalate once corroborated by other nodes or smoothed pressure.
func (rc RiskController) DecideTierWithQuorum(
	evidence EvidenceState,
	currentTier flow.DefenseTier,
	currentFlowState flow.State,
	event flow.SemanticEvent,
	quorumSignal float64,
	pressureScore float64,
	weights SeverityWeights,
	thresholds SeverityThresholds,
) (flow.DefenseTier, *TierUpdate) {
	ruleTier := evaluateEscalationRules(evidence)

	severity := ComputeSeverity(SeverityInputs{
		RepetitivePatternDensity: repetitivePatternDensity(evidence),
		QuorumSignal:             quorumSignal,
		TokenIntegrityScore:      boolToFloat(evidence.TokenMismatchDetected),
		PressureScore:            pressureScore,
	}, weights)
	severityTier := SeverityTier(severity, thresholds)

	targetTier := ruleTier
	if severityTier.Rank() > targetTier.Rank() {
		targetTier = severityTier
	}

	if targetTier.Rank() < currentTier.Rank() {
		targetTier = currentTier
	}
	if shouldDecay(currentTier, currentFlowState, event) {
		targetTier = flow.T1
	}

	if targetTier != currentTier {
		return targetTier, &TierUpdate{From: currentTier, To: targetTier}
	}
	return currentTier, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// evaluateEscalationRules runs R-3 (token mismatch), R-2 (challenge-fail
// accumulation), and R-1 (repetitive pattern count) in priority order,
// then consults any custom rules registered via RegisterEscalationRule,
// and returns the highest tier any rule indicated.
func evaluateEscalationRules(evidence EvidenceState) flow.DefenseTier {
	// R-3: critical signal, highest priority.
	if evidence.TokenMismatchDetected {
		return flow.T3
	}

	// R-2: failure accumulation.
	if evidence.ChallengeFailCount >= challengeFailThreshold {
		return flow.T3
	}

	// R-1: repetitive pattern count.
	best := flow.T0
	patternCount := countRepetitivePatterns(evidence)
	switch {
	case patternCount >= repetitivePatternT2Threshold:
		best = flow.T2
	case patternCount >= repetitivePatternT1Threshold:
		best = flow.T1
	}

	for _, name := range ListEscalationRules() {
		rule, _ := GetEscalationRule(name)
		if tier, ok := rule(evidence); ok && tier.Rank() > best.Rank() {
			best = tier
		}
	}

	return best
}

func countRepetitivePatterns(evidence EvidenceState) int {
	count := 0
	for _, sig := range evidence.SignalHistory {
		if sig == flow.EvSignalRepetitivePattern {
			count++
		}
	}
	return count
}

// shouldDecay implements R-4: a tier at T2 or above decays to T1 when the
// flow is in S3 and the triggering event is CHALLENGE_PASSED.
func shouldDecay(currentTier flow.DefenseTier, currentFlowState flow.State, event flow.SemanticEvent) bool {
	return currentTier.Rank() >= flow.T2.Rank() &&
		currentFlowState == flow.S3 &&
		event.Type == flow.EvChallengePassed
}

// NewTierUpdatedEvent builds the RISK_TIER_UPDATED event RiskController
// callers emit alongside a tier change, carrying the from/to tiers in its
// payload and inheriting timestamp/session from the triggering event.
func NewTierUpdatedEvent(update TierUpdate, source flow.SemanticEvent) flow.SemanticEvent {
	return flow.SemanticEvent{
		EventID:   fmt.Sprintf("risk-%d-%s", source.TsMs, source.SessionID),
		Type:      flow.EvRiskTierUpdated,
		Source:    flow.SourceDefense,
		SessionID: source.SessionID,
		TsMs:      source.TsMs,
		Payload: map[string]any{
			"from": update.From.String(),
			"to":   update.To.String(),
		},
	}
}
