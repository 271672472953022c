// Package config provides configuration loading and validation for the
// flowcore runtime — the ambient process settings (queue sizing, sink
// paths, telemetry bind address, gossip quorum) that sit alongside the
// policy profiles in internal/policy (which cover the domain-level
// budgets/timeboxes the Attack and Defense engines consult per event).
//
// Configuration file: passed explicitly to Load (flowctl's -config flag).
// Schema version: 1
//
// Reloading: this package has no hot-reload or signal handling; a Config
// is read once by Load. SIGHUP reloading exists only for policy profiles
// (internal/policy.Set.WatchReload).
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g., alpha ∈ [0,1], weights ≥ 0).
//   - Invalid config on startup: process refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the flowcore runtime.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID is a unique identifier for this flowcore node. Used in gossip
	// observations and ledger entries. Default: hostname.
	NodeID string `yaml:"node_id"`

	// Runtime configures process-level operational parameters.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Severity configures the composite risk-severity formula.
	Severity SeverityConfig `yaml:"severity"`

	// Budget configures the actuator's token bucket.
	Budget BudgetConfig `yaml:"budget"`

	// Sink configures persistent storage of decisions and evidence.
	Sink SinkConfig `yaml:"sink"`

	// Gossip configures the optional distributed quorum layer.
	Gossip GossipConfig `yaml:"gossip"`

	// Telemetry configures metrics and logging.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// PolicyPath points at the YAML policy-profile file internal/policy
	// loads (budgets/timeboxes/policies per profile).
	PolicyPath string `yaml:"policy_path"`
}

// RuntimeConfig holds process-level operational parameters.
type RuntimeConfig struct {
	// MaxGoroutines is the maximum number of goroutines for event processing.
	// Default: 4.
	MaxGoroutines int `yaml:"max_goroutines"`

	// EventQueueSize is the in-memory event queue depth. If full, new
	// events are dropped and the drop counter is incremented. Default: 10000.
	EventQueueSize int `yaml:"event_queue_size"`

	// MaxTrackedSessions is the maximum number of sessions tracked
	// simultaneously. Default: 8192.
	MaxTrackedSessions int `yaml:"max_tracked_sessions"`

	// LightweightMode marks a low-power deployment. Validate rejects it in
	// combination with gossip.enabled=true; nothing else reads it, so it
	// neither stops the metrics server nor caps max_goroutines.
	// Default: false.
	LightweightMode bool `yaml:"lightweight_mode"`
}

// SeverityConfig holds the composite severity formula's weights and
// tier-escalation thresholds (internal/defense/brain.SeverityWeights /
// SeverityThresholds).
type SeverityConfig struct {
	WeightRepetitivePattern float64 `yaml:"weight_repetitive_pattern"`
	WeightQuorum            float64 `yaml:"weight_quorum"`
	WeightTokenIntegrity    float64 `yaml:"weight_token_integrity"`
	WeightPressure          float64 `yaml:"weight_pressure"`

	ThresholdT1 float64 `yaml:"threshold_t1"`
	ThresholdT2 float64 `yaml:"threshold_t2"`
	ThresholdT3 float64 `yaml:"threshold_t3"`

	// PressureAlpha is the EWMA smoothing factor α ∈ [0.0, 1.0].
	// Default: 0.8.
	PressureAlpha float64 `yaml:"pressure_alpha"`
}

// BudgetConfig holds token bucket parameters.
type BudgetConfig struct {
	// Capacity is the maximum number of tokens. Default: 100.
	Capacity int `yaml:"capacity"`

	// RefillPeriod is the interval between full refills. Default: 60s.
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// SinkConfig holds persistence parameters.
type SinkConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	// Default: /var/lib/flowcore/flowcore.db.
	DBPath string `yaml:"db_path"`

	// DecisionLogPath is the JSONL decision/evidence log path.
	DecisionLogPath string `yaml:"decision_log_path"`

	// RetentionDays is the ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// GossipConfig holds the optional distributed quorum parameters.
type GossipConfig struct {
	// Enabled controls whether the gossip layer is active.
	// Default: false (standalone mode).
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the quorum-observation listen address.
	// Default: 0.0.0.0:9443.
	ListenAddr string `yaml:"listen_addr"`

	// Peers is the static list of peer addresses (host:port).
	Peers []string `yaml:"peers"`

	// QuorumMin is the minimum number of unique nodes that must report
	// a session as risky before the quorum signal is set to 1.0.
	// Default: 2.
	QuorumMin int `yaml:"quorum_min"`

	// EnvelopeTTL is the maximum age of a quorum observation before
	// expiry. Default: 30s.
	EnvelopeTTL time.Duration `yaml:"envelope_ttl"`
}

// TelemetryConfig holds metrics and logging parameters.
type TelemetryConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// DefaultDBPath mirrors the sink package constant for use in config defaults.
const DefaultDBPath = "/var/lib/flowcore/flowcore.db"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		PolicyPath:    "/etc/flowcore/policy.yaml",
		Runtime: RuntimeConfig{
			MaxGoroutines:      4,
			EventQueueSize:     10000,
			MaxTrackedSessions: 8192,
		},
		Severity: SeverityConfig{
			WeightRepetitivePattern: 0.4,
			WeightQuorum:            0.2,
			WeightTokenIntegrity:    0.2,
			WeightPressure:          0.2,
			ThresholdT1:             1.0,
			ThresholdT2:             3.0,
			ThresholdT3:             6.0,
			PressureAlpha:           0.8,
		},
		Budget: BudgetConfig{
			Capacity:     100,
			RefillPeriod: 60 * time.Second,
		},
		Sink: SinkConfig{
			DBPath:          DefaultDBPath,
			DecisionLogPath: "/var/lib/flowcore/decisions.jsonl",
			RetentionDays:   30,
		},
		Gossip: GossipConfig{
			Enabled:     false,
			ListenAddr:  "0.0.0.0:9443",
			QuorumMin:   2,
			EnvelopeTTL: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path. Returns the
// merged config (defaults overridden by file values). Returns an error if
// the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, returning a descriptive
// error listing every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Runtime.MaxGoroutines < 1 || cfg.Runtime.MaxGoroutines > 64 {
		errs = append(errs, fmt.Sprintf("runtime.max_goroutines must be in [1, 64], got %d", cfg.Runtime.MaxGoroutines))
	}
	if cfg.Runtime.EventQueueSize < 100 {
		errs = append(errs, fmt.Sprintf("runtime.event_queue_size must be >= 100, got %d", cfg.Runtime.EventQueueSize))
	}
	if cfg.Runtime.MaxTrackedSessions < 1 || cfg.Runtime.MaxTrackedSessions > 65536 {
		errs = append(errs, fmt.Sprintf("runtime.max_tracked_sessions must be in [1, 65536], got %d", cfg.Runtime.MaxTrackedSessions))
	}
	if cfg.Severity.PressureAlpha < 0.0 || cfg.Severity.PressureAlpha > 1.0 {
		errs = append(errs, fmt.Sprintf("severity.pressure_alpha must be in [0.0, 1.0], got %f", cfg.Severity.PressureAlpha))
	}
	if cfg.Severity.WeightRepetitivePattern < 0 || cfg.Severity.WeightQuorum < 0 ||
		cfg.Severity.WeightTokenIntegrity < 0 || cfg.Severity.WeightPressure < 0 {
		errs = append(errs, "all severity weights must be >= 0")
	}
	if !(cfg.Severity.ThresholdT1 < cfg.Severity.ThresholdT2 && cfg.Severity.ThresholdT2 < cfg.Severity.ThresholdT3) {
		errs = append(errs, "severity thresholds must be strictly increasing: threshold_t1 < threshold_t2 < threshold_t3")
	}
	if cfg.Budget.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("budget.capacity must be >= 1, got %d", cfg.Budget.Capacity))
	}
	if cfg.Budget.RefillPeriod < time.Second {
		errs = append(errs, fmt.Sprintf("budget.refill_period must be >= 1s, got %s", cfg.Budget.RefillPeriod))
	}
	if cfg.Sink.DBPath == "" {
		errs = append(errs, "sink.db_path must not be empty")
	}
	if cfg.Sink.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("sink.retention_days must be >= 1, got %d", cfg.Sink.RetentionDays))
	}
	if cfg.PolicyPath == "" {
		errs = append(errs, "policy_path must not be empty")
	}
	if cfg.Gossip.Enabled && cfg.Gossip.QuorumMin < 1 {
		errs = append(errs, fmt.Sprintf("gossip.quorum_min must be >= 1, got %d", cfg.Gossip.QuorumMin))
	}
	if cfg.Runtime.LightweightMode && cfg.Gossip.Enabled {
		errs = append(errs, "runtime.lightweight_mode=true is incompatible with gossip.enabled=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
