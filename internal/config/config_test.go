package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_PassesValidation(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Defaults() must validate cleanly, got: %v", err)
	}
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
schema_version: "1"
node_id: test-node
policy_path: /etc/flowcore/policy.yaml
runtime:
  max_goroutines: 8
severity:
  pressure_alpha: 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != "test-node" {
		t.Errorf("NodeID = %q, want test-node", cfg.NodeID)
	}
	if cfg.Runtime.MaxGoroutines != 8 {
		t.Errorf("MaxGoroutines = %d, want 8", cfg.Runtime.MaxGoroutines)
	}
	if cfg.Severity.PressureAlpha != 0.5 {
		t.Errorf("PressureAlpha = %v, want 0.5", cfg.Severity.PressureAlpha)
	}
	// Fields not present in the file must retain their defaults.
	if cfg.Runtime.EventQueueSize != 10000 {
		t.Errorf("EventQueueSize = %d, want default 10000", cfg.Runtime.EventQueueSize)
	}
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
schema_version: "1"
node_id: test-node
policy_path: /etc/flowcore/policy.yaml
runtime:
  max_goroutines: 999
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject max_goroutines out of range")
	}
}

func TestValidate_SchemaVersionMismatch(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Error("expected schema_version mismatch to fail validation")
	}
}

func TestValidate_NonIncreasingSeverityThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Severity.ThresholdT2 = cfg.Severity.ThresholdT1
	if err := Validate(&cfg); err == nil {
		t.Error("expected non-increasing severity thresholds to fail validation")
	}
}

func TestValidate_PressureAlphaOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Severity.PressureAlpha = 1.5
	if err := Validate(&cfg); err == nil {
		t.Error("expected pressure_alpha > 1.0 to fail validation")
	}
}

func TestValidate_LightweightModeIncompatibleWithGossip(t *testing.T) {
	cfg := Defaults()
	cfg.Runtime.LightweightMode = true
	cfg.Gossip.Enabled = true
	if err := Validate(&cfg); err == nil {
		t.Error("expected lightweight_mode + gossip.enabled to fail validation")
	}
}

func TestValidate_GossipQuorumMinRequiredWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Gossip.Enabled = true
	cfg.Gossip.QuorumMin = 0
	if err := Validate(&cfg); err == nil {
		t.Error("expected quorum_min < 1 with gossip enabled to fail validation")
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected Load to fail for a missing file")
	}
}
