package brain

import "sync"

// Pressure implements an EWMA accumulator for a single session's sustained
// risk signal, smoothing out single noisy events the way a raw streak
// counter cannot.
//
// Formula: P_{t+1} = α·P_t + (1-α)·A_t
//
//   - P_t  = pressure at time t
//   - A_t  = instantaneous signal strength at time t
//   - α    = smoothing factor; close to 1.0 resists single-event spikes,
//     close to 0.0 reacts immediately
//
// P ≥ 0.0 always, given A_t ≥ 0 and α ∈ [0,1].
type Pressure struct {
	mu    sync.Mutex
	alpha float64
	value float64
}

// NewPressure creates a Pressure accumulator with the given smoothing
// factor. alpha must be in [0.0, 1.0]; panics if out of range.
func NewPressure(alpha float64) *Pressure {
	if alpha < 0.0 || alpha > 1.0 {
		panic("brain.Pressure: alpha must be in [0.0, 1.0]")
	}
	return &Pressure{alpha: alpha}
}

// Update applies one EWMA step and returns the new pressure value.
func (p *Pressure) Update(signal float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = p.alpha*p.value + (1.0-p.alpha)*signal
	return p.value
}

// Value returns the current pressure without updating it.
func (p *Pressure) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Reset zeroes the pressure, used when a session returns to S0 (FLOW_RESET).
func (p *Pressure) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = 0.0
}

// SignalFor returns the instantaneous signal strength A_t the Aggregator's
// event stream contributes to the pressure accumulator: 1.0 when the caller
// reports a signal event (signalSeen) or once evidence has recorded a token
// mismatch, 0.0 otherwise. Challenge failures do not contribute.
func SignalFor(evidence EvidenceState, signalSeen bool) float64 {
	if signalSeen || evidence.TokenMismatchDetected {
		return 1.0
	}
	return 0.0
}
