package attack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/flowcore/internal/flow"
)

// EvidenceLog is one JSONL record written whenever the failure matrix
// fires: a snapshot of the engine's state at the moment of recovery.
type EvidenceLog struct {
	Timestamp             string         `json:"timestamp"`
	State                 string         `json:"state"`
	Event                 string         `json:"event"`
	FailureCode           string         `json:"failure_code"`
	RetryBudgetRemaining  map[string]int `json:"retry_budget_remaining"`
	Counters              map[string]int `json:"counters"`
	ElapsedTimeTotalMs    int64          `json:"elapsed_time_total_ms"`
	ElapsedTimeStageMs    int64          `json:"elapsed_time_stage_ms"`
	ChosenRecoverPath     string         `json:"chosen_recover_path"`
}

// ROISummary is the cumulative cost-of-attack picture exposed at the end of
// a run (or on demand mid-run).
type ROISummary struct {
	TotalAttempts     int            `json:"total_attempts"`
	TotalTimeMs       int64          `json:"total_time_ms"`
	ChallengeCount    int            `json:"challenge_count"`
	RollbackCount     int            `json:"rollback_count"`
	DetailedCounters  map[string]int `json:"detailed_counters"`
}

// ROILogger accumulates per-run ROI metrics and appends one EvidenceLog
// record per failure-matrix recovery to an append-only JSONL file. Write
// failures are logged and swallowed — they must never abort the engine
// (spec §4.6).
type ROILogger struct {
	mu sync.Mutex

	logPath string
	log     *zap.Logger

	totalAttempts  int
	totalTimeMs    int64
	challengeCount int
	rollbackCount  int
	counters       map[string]int
}

// NewROILogger builds a logger that appends to logPath. An empty logPath
// disables file output entirely; counters still accumulate in memory.
func NewROILogger(logPath string, log *zap.Logger) *ROILogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ROILogger{
		logPath: logPath,
		log:     log,
		counters: map[string]int{
			"seatTakenCount":     0,
			"holdFailCount":      0,
			"sectionEmptyCount":  0,
			"challengeFailCount": 0,
			"timeoutCount":       0,
			"rollbackCount":      0,
		},
	}
}

// LogFailure records one failure-matrix recovery: it updates the running
// ROI counters and appends an EvidenceLog entry.
func (r *ROILogger) LogFailure(
	state flow.State,
	event flow.EventType,
	failureCode flow.FailureCode,
	remainingBudgets map[string]int,
	stageElapsedMs, totalElapsedMs int64,
	recoverPath flow.State,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalAttempts++
	r.totalTimeMs = totalElapsedMs
	r.updateCounters(failureCode, recoverPath)

	evidence := EvidenceLog{
		Timestamp:            time.Now().UTC().Format(time.RFC3339Nano),
		State:                state.String(),
		Event:                string(event),
		FailureCode:          string(failureCode),
		RetryBudgetRemaining: remainingBudgets,
		Counters:             cloneCounters(r.counters),
		ElapsedTimeTotalMs:   totalElapsedMs,
		ElapsedTimeStageMs:   stageElapsedMs,
		ChosenRecoverPath:    recoverPath.String(),
	}

	r.writeJSONL(evidence)
}

func (r *ROILogger) updateCounters(failureCode flow.FailureCode, recoverPath flow.State) {
	switch failureCode {
	case flow.FSeatTaken:
		r.counters["seatTakenCount"]++
	case flow.FHoldFailed:
		r.counters["holdFailCount"]++
	case flow.FSectionEmpty:
		r.counters["sectionEmptyCount"]++
	case flow.FChallengeFailed:
		r.counters["challengeFailCount"]++
		r.challengeCount++
	case flow.FNetworkTimeout, flow.FThrottledTimeout:
		r.counters["timeoutCount"]++
	}

	recoverStr := strings.ToLower(recoverPath.String())
	rollingBack := strings.Contains(recoverStr, "s4") &&
		(failureCode == flow.FSeatTaken || failureCode == flow.FHoldFailed)
	if rollingBack {
		r.counters["rollbackCount"]++
		r.rollbackCount++
	}
}

func (r *ROILogger) writeJSONL(evidence EvidenceLog) {
	if r.logPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.logPath), 0o755); err != nil {
		r.log.Error("roi: failed to create evidence log directory", zap.Error(err))
		return
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		r.log.Error("roi: failed to marshal evidence record", zap.Error(err))
		return
	}
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Error("roi: failed to open evidence log", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		r.log.Error("roi: failed to append evidence record", zap.Error(err))
	}
}

// Summary returns a snapshot of the cumulative ROI metrics.
func (r *ROILogger) Summary() ROISummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ROISummary{
		TotalAttempts:    r.totalAttempts,
		TotalTimeMs:      r.totalTimeMs,
		ChallengeCount:   r.challengeCount,
		RollbackCount:    r.rollbackCount,
		DetailedCounters: cloneCounters(r.counters),
	}
}

func cloneCounters(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
