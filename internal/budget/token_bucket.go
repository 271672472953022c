// Package budget implements a token bucket rate limiter for the Defense
// actuator's containment actions.
//
// Cost model:
//   - THROTTLE action: cost 1
//   - CHALLENGE action: cost 5
//   - SANDBOX action:   cost 10
//   - BLOCK action:     cost 20
//
// Higher-impact actions consume more budget, preventing a burst of BLOCK
// decisions from a single noisy session exhausting the bucket that every
// other session's actions draw from. A full refill every RefillPeriod
// ensures legitimate containment capacity recovers quickly.
//
// Invariants:
//   - tokens ∈ [0, capacity] at all times.
//   - Consume() is atomic under mutex.
//   - Refill goroutine runs for the lifetime of the Bucket.
package budget

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/octoreflex/flowcore/internal/flow"
)

// CostModel defines the token cost for each action kind. Costs must be
// positive integers.
var CostModel = map[flow.ActionKind]int{
	flow.ActionThrottle:  1,
	flow.ActionChallenge: 5,
	flow.ActionSandbox:   10,
	flow.ActionBlock:     20,
}

// Bucket is a thread-safe token bucket for rate-limiting containment actions.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and starts the refill
// goroutine. capacity must be > 0. refillPeriod must be > 0. Call Close()
// to stop the refill goroutine.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("budget.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("budget.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens from the bucket. Returns true if
// the tokens were available and consumed, false if the action must be
// deferred or downgraded.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// ConsumeForAction consumes the standard cost for a given action kind.
// Returns true (no-op success) for an action kind with no defined cost.
func (b *Bucket) ConsumeForAction(kind flow.ActionKind) bool {
	cost, ok := CostModel[kind]
	if !ok {
		return true
	}
	return b.Consume(cost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int { return b.capacity }

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 { return b.consumedTotal.Load() }

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 { return b.refillCount.Load() }

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() { close(b.stop) }
