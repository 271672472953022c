package brain

import "github.com/octoreflex/flowcore/internal/flow"

// SeverityWeights holds the coefficients for the composite severity
// formula S = w1*A + w2*Q + w3*I + w4*P. All weights must be non-negative;
// they need not sum to 1.0.
type SeverityWeights struct {
	RepetitivePattern float64 // w1: weight for repetitive-pattern density (A)
	Quorum            float64 // w2: weight for the gossip quorum signal (Q)
	TokenIntegrity    float64 // w3: weight for token-mismatch evidence (I)
	Pressure          float64 // w4: weight for EWMA pressure (P)
}

// DefaultSeverityWeights returns the default weight configuration.
func DefaultSeverityWeights() SeverityWeights {
	return SeverityWeights{
		RepetitivePattern: 0.4,
		Quorum:            0.2,
		TokenIntegrity:    0.2,
		Pressure:          0.2,
	}
}

// SeverityThresholds holds the score boundaries that escalate to each tier
// above T0. Thresholds must be strictly increasing.
type SeverityThresholds struct {
	T1 float64
	T2 float64
	T3 float64
}

// DefaultSeverityThresholds returns the default threshold configuration.
func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{T1: 1.0, T2: 3.0, T3: 6.0}
}

// SeverityInputs holds the four input signals for the composite score.
type SeverityInputs struct {
	// RepetitivePatternDensity is the fraction of the signal history ring
	// buffer that is SIGNAL_REPETITIVE_PATTERN. Range [0.0, 1.0].
	RepetitivePatternDensity float64

	// QuorumSignal is 1.0 if independent nodes have corroborated this
	// session as risky, 0.0 otherwise.
	QuorumSignal float64

	// TokenIntegrityScore is 1.0 if a token mismatch has been observed for
	// this session, 0.0 otherwise.
	TokenIntegrityScore float64

	// PressureScore is the EWMA-smoothed pressure value for this session.
	PressureScore float64
}

// ComputeSeverity computes S = w1*A + w2*Q + w3*I + w4*P.
func ComputeSeverity(in SeverityInputs, w SeverityWeights) float64 {
	return w.RepetitivePattern*in.RepetitivePatternDensity +
		w.Quorum*in.QuorumSignal +
		w.TokenIntegrity*in.TokenIntegrityScore +
		w.Pressure*in.PressureScore
}

// SeverityTier maps a composite severity score to a DefenseTier, evaluating
// thresholds from highest to lowest. Returns T0 if no threshold is crossed.
func SeverityTier(severity float64, t SeverityThresholds) flow.DefenseTier {
	switch {
	case severity >= t.T3:
		return flow.T3
	case severity >= t.T2:
		return flow.T2
	case severity >= t.T1:
		return flow.T1
	default:
		return flow.T0
	}
}

// repetitivePatternDensity returns the fraction of evidence.SignalHistory
// that is a repetitive-pattern signal.
func repetitivePatternDensity(evidence EvidenceState) float64 {
	if len(evidence.SignalHistory) == 0 {
		return 0
	}
	count := countRepetitivePatterns(evidence)
	return float64(count) / float64(len(evidence.SignalHistory))
}
