package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/flowcore/internal/flow"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestJSONLSink_AppendCreatesParentDirAndWritesOneLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "decisions.jsonl")
	sink := NewJSONLSink(path, zap.NewNop())

	sink.Append(DecisionRecord{
		SessionID: "sess-1",
		FromTier:  flow.T0,
		ToTier:    flow.T1,
		Actions:   []flow.ActionKind{flow.ActionThrottle},
	})

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}

	var rec DecisionRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.SessionID != "sess-1" || rec.ToTier != flow.T1 {
		t.Errorf("rec = %+v, want SessionID=sess-1 ToTier=T1", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("expected Append to stamp a zero Timestamp")
	}
}

func TestJSONLSink_AppendsSequentially(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	sink := NewJSONLSink(path, zap.NewNop())

	sink.Append(DecisionRecord{SessionID: "a"})
	sink.Append(DecisionRecord{SessionID: "b"})
	sink.Append(DecisionRecord{SessionID: "c"})

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
}

func TestJSONLSink_PreservesExplicitTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	sink := NewJSONLSink(path, zap.NewNop())

	stamp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := DecisionRecord{SessionID: "sess-stamped", Timestamp: stamp}
	if rec.Timestamp.IsZero() {
		t.Fatal("test precondition: expected a non-zero timestamp before Append")
	}
	sink.Append(rec)

	lines := readLines(t, path)
	var got DecisionRecord
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want the explicit %v preserved", got.Timestamp, stamp)
	}
}
