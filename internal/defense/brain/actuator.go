package brain

import (
	"fmt"

	"github.com/octoreflex/flowcore/internal/flow"
)

// throttleDurationMs maps a THROTTLE intensity to the delay, in
// milliseconds, the Actuator attaches to the rendered event's payload.
var throttleDurationMs = map[flow.ActionIntensity]int64{
	flow.IntensityLight:  200,
	flow.IntensityStrong: 2000,
}

// RateLimiter gates action emission against a shared budget. budget.Bucket
// satisfies this via its ConsumeForAction method.
type RateLimiter interface {
	ConsumeForAction(kind flow.ActionKind) bool
}

// Actuator renders PlannedActions into concrete Defense events a caller can
// feed back into the Attack/Defense engines as the observable effect of an
// escalation decision.
type Actuator struct{}

// Execute renders plans against the current sandbox state, returning one
// event per plan except that a SANDBOX action is suppressed if the session
// is already sandboxed — sandboxing twice has no additional effect and
// would only pollute the trace — and a HONEY action renders nothing. If limiter is non-nil, an action whose cost
// the shared budget cannot cover is dropped rather than rendered — a
// BLOCK a node can't afford degrades silently rather than panicking the
// pipeline, and the next refill cycle restores capacity.
func (Actuator) Execute(plans []PlannedAction, trigger flow.SemanticEvent, alreadySandboxed bool, limiter RateLimiter) []flow.SemanticEvent {
	events := make([]flow.SemanticEvent, 0, len(plans))
	for i, plan := range plans {
		if limiter != nil && !limiter.ConsumeForAction(plan.Kind) {
			continue
		}
		switch plan.Kind {
		case flow.ActionThrottle:
			events = append(events, newActionEvent(flow.EvDefThrottled, trigger, i, map[string]any{
				"intensity":   string(plan.Intensity),
				"duration_ms": throttleDurationMs[plan.Intensity],
			}))
		case flow.ActionChallenge:
			events = append(events, newActionEvent(flow.EvDefChallengeForced, trigger, i, map[string]any{
				"intensity": string(plan.Intensity),
			}))
		case flow.ActionSandbox:
			if alreadySandboxed {
				continue
			}
			events = append(events, newActionEvent(flow.EvDefSandboxed, trigger, i, nil))
		case flow.ActionBlock:
			events = append(events, newActionEvent(flow.EvDefBlocked, trigger, i, nil))
		}
	}
	return events
}

func newActionEvent(eventType flow.EventType, trigger flow.SemanticEvent, seq int, payload map[string]any) flow.SemanticEvent {
	return flow.SemanticEvent{
		EventID:   fmt.Sprintf("action-%d-%s-%d", trigger.TsMs, trigger.SessionID, seq),
		Type:      eventType,
		Source:    flow.SourceDefense,
		SessionID: trigger.SessionID,
		TsMs:      trigger.TsMs,
		Payload:   payload,
	}
}
