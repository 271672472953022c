// Package sink persists flow engine decisions, evidence, and scenario
// acceptance reports to a BoltDB database for audit and replay, following
// the bucket-per-concern layout the teacher's storage layer uses.
//
// Schema (BoltDB bucket layout):
//
//	/decisions
//	    key:   RFC3339Nano timestamp + "_" + session_id  [sortable]
//	    value: JSON-encoded LedgerEntry (one per handled event/transition)
//
//	/evidence
//	    key:   session_id
//	    value: JSON-encoded SessionRecord (latest known state + tier)
//
//	/scenario_reports
//	    key:   RFC3339Nano timestamp + "_" + scenario_id  [sortable]
//	    value: JSON-encoded ScenarioReportRecord
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// Retention:
//   - Ledger entries older than RetentionDays are pruned by the caller via
//     PruneOldLedgerEntries; sessions are never automatically pruned.
//
// Failure modes:
//   - Database file corruption: bbolt detects via CRC and returns an error
//     on Open(). Callers should log and refuse to start.
//   - Disk full: bbolt.Update() returns an error, which callers should log
//     and continue without persisting (in-memory state preserved).
package sink

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/octoreflex/flowcore/internal/flow"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/flowcore/flowcore.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	bucketDecisions      = "decisions"
	bucketEvidence       = "evidence"
	bucketScenarioReport = "scenario_reports"
	bucketMeta           = "meta"
)

// SessionRecord is the persisted latest-known state for one session.
type SessionRecord struct {
	SessionID  string          `json:"session_id"`
	State      flow.State      `json:"state"`
	DefenseTier flow.DefenseTier `json:"defense_tier"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// LedgerEntry is a single audit log record: one transition or decision.
type LedgerEntry struct {
	Timestamp       time.Time       `json:"timestamp"`
	SessionID       string          `json:"session_id"`
	EventType       flow.EventType  `json:"event_type"`
	StateFrom       flow.State      `json:"state_from"`
	StateTo         flow.State      `json:"state_to"`
	TerminalReason  flow.TerminalReason `json:"terminal_reason"`
	FailureCode     flow.FailureCode `json:"failure_code"`
	DefenseTier     flow.DefenseTier `json:"defense_tier"`
	BudgetRemaining int             `json:"budget_remaining"`
}

// DB wraps a BoltDB instance with typed accessors for flowcore data.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at path, initialising all
// required buckets and verifying the schema version.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketDecisions, bucketEvidence, bucketScenarioReport, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("schema version mismatch: database has %q, flowcore requires %q", string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// PutSession writes or updates the latest-known record for a session.
func (d *DB) PutSession(rec SessionRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("PutSession marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvidence))
		return b.Put([]byte(rec.SessionID), data)
	})
}

// GetSession retrieves the latest-known record for a session.
// Returns (nil, nil) if no record exists.
func (d *DB) GetSession(sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEvidence))
		data := b.Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("GetSession(%q): %w", sessionID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ledgerKey constructs a sortable BoltDB key for a ledger entry: lexicographic
// sort over RFC3339Nano timestamp matches chronological order.
func ledgerKey(t time.Time, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), sessionID))
}

// AppendLedger writes a new audit ledger entry.
func (d *DB) AppendLedger(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendLedger marshal: %w", err)
	}
	key := ledgerKey(entry.Timestamp, entry.SessionID)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisions))
		return b.Put(key, data)
	})
}

// PruneOldLedgerEntries deletes ledger entries older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldLedgerEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisions))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldLedgerEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadLedger returns all ledger entries in chronological order. Intended
// for operational inspection, not the hot path.
func (d *DB) ReadLedger() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisions))
		return b.ForEach(func(_, v []byte) error {
			var entry LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// ScenarioReportRecord is the persisted outcome of one acceptance-test
// scenario run, written by the CLI runner between invocations so repeated
// runs can be compared for regressions.
type ScenarioReportRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	ScenarioID     string    `json:"scenario_id"`
	ScenarioName   string    `json:"scenario_name"`
	Passed         bool      `json:"passed"`
	TotalElapsedMs int64     `json:"total_elapsed_ms"`
	FailureDetail  []string  `json:"failure_detail,omitempty"`
}

// AppendScenarioReport writes a new scenario report record.
func (d *DB) AppendScenarioReport(rec ScenarioReportRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("AppendScenarioReport marshal: %w", err)
	}
	key := ledgerKey(rec.Timestamp, rec.ScenarioID)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScenarioReport))
		return b.Put(key, data)
	})
}

// ReadScenarioReports returns all persisted scenario report records in
// chronological order.
func (d *DB) ReadScenarioReports() ([]ScenarioReportRecord, error) {
	var records []ScenarioReportRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScenarioReport))
		return b.ForEach(func(_, v []byte) error {
			var rec ScenarioReportRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}
