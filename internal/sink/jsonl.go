package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/flowcore/internal/flow"
)

// DecisionRecord is one Defense brain decision: a risk tier assignment and
// the actions the Actuator rendered for it.
type DecisionRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"session_id"`
	FromTier  flow.DefenseTier  `json:"from_tier"`
	ToTier    flow.DefenseTier  `json:"to_tier"`
	Actions   []flow.ActionKind `json:"actions"`
	TriggerID string            `json:"trigger_event_id"`
}

// JSONLSink appends DecisionRecords to a JSON-lines file. Writes are
// fail-safe: any I/O or marshal error is logged and swallowed rather than
// propagated, since losing one audit line must never abort a running
// Defense pipeline.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewJSONLSink creates a sink writing to path, creating its parent
// directory on first write if necessary.
func NewJSONLSink(path string, log *zap.Logger) *JSONLSink {
	return &JSONLSink{path: path, log: log}
}

// Append writes one DecisionRecord as a single JSON line.
func (s *JSONLSink) Append(rec DecisionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("sink: marshal decision record", zap.Error(err))
		return
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Error("sink: create directory", zap.String("path", s.path), zap.Error(err))
		return
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Error("sink: open decision log", zap.String("path", s.path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		s.log.Error("sink: write decision record", zap.Error(err))
	}
}
