package sink

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/octoreflex/flowcore/internal/flow"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowcore.db")
	db, err := Open(path, 30)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_InitializesBucketsAndSchemaVersion(t *testing.T) {
	db := openTestDB(t)
	if err := db.checkSchemaVersion(); err != nil {
		t.Errorf("checkSchemaVersion: %v", err)
	}
}

func TestOpen_DefaultsRetentionWhenNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.db")
	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if db.retentionDays != DefaultRetentionDays {
		t.Errorf("retentionDays = %d, want %d", db.retentionDays, DefaultRetentionDays)
	}
}

func TestSession_PutAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	rec := SessionRecord{SessionID: "sess-1", State: flow.S4, DefenseTier: flow.T1}
	if err := db.PutSession(rec); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("expected a session record, got nil")
	}
	if got.State != flow.S4 || got.DefenseTier != flow.T1 {
		t.Errorf("got = %+v, want State=S4 DefenseTier=T1", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
}

func TestSession_GetMissingReturnsNilNil(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetSession("nonexistent")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing session, got %+v", got)
	}
}

func TestLedger_AppendAndReadInChronologicalOrder(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, st := range []flow.State{flow.S1, flow.S2, flow.S4} {
		entry := LedgerEntry{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			SessionID: "sess-1",
			StateTo:   st,
		}
		if err := db.AppendLedger(entry); err != nil {
			t.Fatalf("AppendLedger: %v", err)
		}
	}

	entries, err := db.ReadLedger()
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []flow.State{flow.S1, flow.S2, flow.S4}
	for i, e := range entries {
		if e.StateTo != want[i] {
			t.Errorf("entries[%d].StateTo = %v, want %v", i, e.StateTo, want[i])
		}
	}
}

func TestPruneOldLedgerEntries_DeletesOnlyEntriesBeforeCutoff(t *testing.T) {
	db := openTestDB(t)
	db.retentionDays = 1

	now := time.Now().UTC()
	old := LedgerEntry{Timestamp: now.AddDate(0, 0, -5), SessionID: "old", StateTo: flow.S1}
	recent := LedgerEntry{Timestamp: now, SessionID: "recent", StateTo: flow.S2}

	if err := db.AppendLedger(old); err != nil {
		t.Fatalf("AppendLedger(old): %v", err)
	}
	if err := db.AppendLedger(recent); err != nil {
		t.Fatalf("AppendLedger(recent): %v", err)
	}

	deleted, err := db.PruneOldLedgerEntries()
	if err != nil {
		t.Fatalf("PruneOldLedgerEntries: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := db.ReadLedger()
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "recent" {
		t.Errorf("entries = %+v, want only the recent entry to survive", entries)
	}
}

func TestScenarioReport_AppendAndRead(t *testing.T) {
	db := openTestDB(t)
	rec := ScenarioReportRecord{ScenarioID: "SCN-01", ScenarioName: "happy_path_purchase", Passed: true}
	if err := db.AppendScenarioReport(rec); err != nil {
		t.Fatalf("AppendScenarioReport: %v", err)
	}

	records, err := db.ReadScenarioReports()
	if err != nil {
		t.Fatalf("ReadScenarioReports: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ScenarioID != "SCN-01" || !records[0].Passed {
		t.Errorf("records[0] = %+v, want ScenarioID=SCN-01 Passed=true", records[0])
	}
	if records[0].Timestamp.IsZero() {
		t.Error("expected Timestamp to be stamped")
	}
}
