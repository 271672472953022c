// Package main — cmd/flowctl/main.go
//
// flowctl is the acceptance-test runner for the flow control core.
//
// Startup sequence:
//  0. Initialise structured logger (zap, JSON format).
//  1. Load policy profiles from -policy.
//  2. Load scenario fixtures from -scenarios.
//  4. Open the optional bbolt audit/report store, if -db is set.
//  5. Start the Prometheus metrics server (loopback only), unless -no-metrics.
//  6. Load the optional -config file and create the actuator's token bucket.
//  7. Run every loaded scenario through both engines, verify, and report.
//  8. Persist a ScenarioReportRecord per scenario if a bbolt store is open.
//  9. Print the aggregate summary and exit non-zero on any FAILED scenario.
//
// Usage:
//
//	flowctl -scenarios ./scenarios -policy ./policy.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/octoreflex/flowcore/internal/budget"
	"github.com/octoreflex/flowcore/internal/config"
	"github.com/octoreflex/flowcore/internal/defense/brain"
	"github.com/octoreflex/flowcore/internal/gossip"
	"github.com/octoreflex/flowcore/internal/policy"
	"github.com/octoreflex/flowcore/internal/scenario"
	"github.com/octoreflex/flowcore/internal/sink"
	"github.com/octoreflex/flowcore/internal/telemetry"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	scenariosDir := flag.String("scenarios", "./scenarios", "Directory of SCN-NN.json scenario fixtures")
	policyPath := flag.String("policy", "./policy.yaml", "Path to policy.yaml")
	dbPath := flag.String("db", "", "Optional bbolt audit/report database path (disabled if empty)")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9091", "Prometheus metrics bind address")
	noMetrics := flag.Bool("no-metrics", false, "Disable the metrics server")
	attackProfile := flag.String("attack-profile", policy.DefaultProfileName, "Policy profile used for Attack-engine runs")
	defenseProfile := flag.String("defense-profile", policy.DefaultProfileName, "Policy profile used for Defense-engine runs")
	configPath := flag.String("config", "", "Optional config.yaml controlling severity weights and the gossip quorum layer (defaults used if empty)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("flowctl %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("flowctl starting",
		zap.String("scenarios", *scenariosDir),
		zap.String("policy", *policyPath),
	)

	// ── Step 1: Load policies ─────────────────────────────────────────────────
	policies, err := policy.Load(*policyPath)
	if err != nil {
		log.Fatal("policy load failed", zap.Error(err))
	}
	policies.WatchReload(log)

	attackPol, ok := policies.Get(*attackProfile)
	if !ok {
		log.Fatal("attack profile not found", zap.String("profile", *attackProfile))
	}
	defensePol, ok := policies.Get(*defenseProfile)
	if !ok {
		log.Fatal("defense profile not found", zap.String("profile", *defenseProfile))
	}

	// ── Step 2: Load scenarios ─────────────────────────────────────────────────
	loader := scenario.NewLoader(*scenariosDir, log)
	scenarios, err := loader.LoadAll()
	if err != nil {
		log.Fatal("scenario load failed", zap.Error(err))
	}
	if len(scenarios) == 0 {
		log.Fatal("no scenarios loaded", zap.String("dir", *scenariosDir))
	}
	log.Info("scenarios loaded", zap.Int("count", len(scenarios)))

	// ── Step 4: Optional bbolt store ──────────────────────────────────────────
	var db *sink.DB
	if *dbPath != "" {
		db, err = sink.Open(*dbPath, sink.DefaultRetentionDays)
		if err != nil {
			log.Fatal("bbolt open failed", zap.Error(err), zap.String("path", *dbPath))
		}
		defer db.Close() //nolint:errcheck
		log.Info("bbolt store opened", zap.String("path", *dbPath))
	}

	// ── Step 5: Metrics server ────────────────────────────────────────────────
	metrics := telemetry.NewMetrics()
	if !*noMetrics {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		go func() {
			if err := metrics.ServeMetrics(ctx, *metricsAddr); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		log.Info("metrics server started", zap.String("addr", *metricsAddr))
	}

	// ── Step 6: Load runtime config, budget bucket ────────────────────────────
	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("config load failed", zap.Error(err), zap.String("path", *configPath))
		}
		cfg = *loaded
	}
	limiter := budget.New(cfg.Budget.Capacity, cfg.Budget.RefillPeriod)
	defer limiter.Close()

	// ── Step 7: Run every scenario ─────────────────────────────────────────────
	var runner *scenario.Runner
	if cfg.Gossip.Enabled {
		quorum := gossip.NewQuorumWithConfig(gossip.QuorumConfig{
			QuorumMin:  cfg.Gossip.QuorumMin,
			TTL:        cfg.Gossip.EnvelopeTTL,
			TotalPeers: len(cfg.Gossip.Peers),
		})
		weights := brain.SeverityWeights{
			RepetitivePattern: cfg.Severity.WeightRepetitivePattern,
			Quorum:            cfg.Severity.WeightQuorum,
			TokenIntegrity:    cfg.Severity.WeightTokenIntegrity,
			Pressure:          cfg.Severity.WeightPressure,
		}
		thresholds := brain.SeverityThresholds{
			T1: cfg.Severity.ThresholdT1,
			T2: cfg.Severity.ThresholdT2,
			T3: cfg.Severity.ThresholdT3,
		}
		runner = scenario.NewRunnerWithQuorum(limiter, quorum, weights, thresholds, cfg.Severity.PressureAlpha)
		log.Info("gossip quorum enabled", zap.Int("quorum_min", cfg.Gossip.QuorumMin), zap.Int("peers", len(cfg.Gossip.Peers)))
	} else {
		runner = scenario.NewRunner(limiter)
	}
	report := &scenario.Report{}
	runFailed := false

	for _, scn := range scenarios {
		result, err := scenario.Verify(scn, runner, attackPol, defensePol)
		if err != nil {
			log.Error("scenario run failed", zap.String("id", scn.ID), zap.Error(err))
			runFailed = true
			continue
		}
		report.Add(result)

		metrics.EventsProcessedTotal.WithLabelValues("attack", "scenario_run").Inc()
		if !result.IsSuccess {
			log.Warn("scenario FAILED", zap.String("id", scn.ID), zap.String("name", scn.Name))
		}

		if db != nil {
			var failureDetail []string
			for _, a := range result.AssertionResults {
				if !a.Passed {
					failureDetail = append(failureDetail, a.Message)
				}
			}
			rec := sink.ScenarioReportRecord{
				ScenarioID:     result.ScenarioID,
				ScenarioName:   result.ScenarioName,
				Passed:         result.IsSuccess,
				TotalElapsedMs: result.TotalElapsedMs,
				FailureDetail:  failureDetail,
			}
			if err := db.AppendScenarioReport(rec); err != nil {
				log.Error("scenario report persist failed", zap.String("id", scn.ID), zap.Error(err))
			}
		}
	}

	// ── Step 9: Summary and exit code ─────────────────────────────────────────
	fmt.Print(report.Summary())

	if !report.AllPassed() || runFailed {
		log.Warn("flowctl run had failures")
		os.Exit(1)
	}
	log.Info("flowctl run complete — all scenarios passed")
}
