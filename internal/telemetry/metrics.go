// Package telemetry exposes Prometheus metrics for the flowcore engines.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: flowengine_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the flow engines.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Event processing ────────────────────────────────────────────────────

	// EventsProcessedTotal counts semantic events consumed by an engine.
	// Labels: engine (attack, defense), event_type
	EventsProcessedTotal *prometheus.CounterVec

	// EventsDroppedTotal counts events dropped by the dispatch queue.
	// Labels: reason (queue_full, unknown_event)
	EventsDroppedTotal *prometheus.CounterVec

	// EventQueueDepth is the current in-memory event queue depth.
	EventQueueDepth prometheus.Gauge

	// ─── Attack flow ──────────────────────────────────────────────────────────

	// StateTransitionsTotal counts Attack flow transitions.
	// Labels: from_state, to_state
	StateTransitionsTotal *prometheus.CounterVec

	// ActiveSessions is the current number of sessions under active tracking.
	ActiveSessions prometheus.Gauge

	// ─── Defense brain ────────────────────────────────────────────────────────

	// RiskTierHistogram records the distribution of assigned defense tiers.
	RiskTierHistogram prometheus.Histogram

	// RiskEvalsTotal counts RiskController evaluations performed.
	RiskEvalsTotal prometheus.Counter

	// ActionsEmittedTotal counts actuator-rendered defense actions.
	// Labels: kind (THROTTLE, CHALLENGE, SANDBOX, BLOCK)
	ActionsEmittedTotal *prometheus.CounterVec

	// ─── Budget ───────────────────────────────────────────────────────────────

	// BudgetTokensRemaining is the current token bucket level.
	BudgetTokensRemaining prometheus.Gauge

	// BudgetConsumedTotal counts total tokens consumed.
	BudgetConsumedTotal prometheus.Counter

	// BudgetRefillsTotal counts token bucket refill cycles.
	BudgetRefillsTotal prometheus.Counter

	// ─── Gossip quorum ────────────────────────────────────────────────────────

	// GossipEnvelopesReceivedTotal counts received quorum observations.
	// Labels: accepted (true, false)
	GossipEnvelopesReceivedTotal *prometheus.CounterVec

	// GossipEnvelopesSentTotal counts quorum observations broadcast to peers.
	GossipEnvelopesSentTotal prometheus.Counter

	// ─── Sink ─────────────────────────────────────────────────────────────────

	// SinkWriteLatency records persistence write latency.
	SinkWriteLatency prometheus.Histogram

	// SinkRecordsTotal is the current number of persisted evidence records.
	SinkRecordsTotal prometheus.Gauge

	// ─── Process ──────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the process started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all flowcore Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EventsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Total semantic events consumed, by engine and event type.",
		}, []string{"engine", "event_type"}),

		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total events dropped by the dispatch queue.",
		}, []string{"reason"}),

		EventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Current depth of the in-memory event processing queue.",
		}),

		StateTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "attack",
			Name:      "state_transitions_total",
			Help:      "Total Attack flow state transitions, by from_state and to_state.",
		}, []string{"from_state", "to_state"}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "attack",
			Name:      "active_sessions",
			Help:      "Current number of sessions under active tracking.",
		}),

		RiskTierHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Subsystem: "defense",
			Name:      "risk_tier",
			Help:      "Distribution of defense tiers assigned by the RiskController.",
			Buckets:   []float64{0, 1, 2, 3},
		}),

		RiskEvalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "defense",
			Name:      "risk_evals_total",
			Help:      "Total RiskController evaluations performed.",
		}),

		ActionsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "defense",
			Name:      "actions_emitted_total",
			Help:      "Total defense actions rendered by the Actuator, by kind.",
		}, []string{"kind"}),

		BudgetTokensRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "budget",
			Name:      "tokens_remaining",
			Help:      "Current token bucket level.",
		}),

		BudgetConsumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "budget",
			Name:      "consumed_total",
			Help:      "Lifetime total tokens consumed from the budget bucket.",
		}),

		BudgetRefillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "budget",
			Name:      "refills_total",
			Help:      "Total number of token bucket refill cycles completed.",
		}),

		GossipEnvelopesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "gossip",
			Name:      "envelopes_received_total",
			Help:      "Total quorum observations received, by acceptance status.",
		}, []string{"accepted"}),

		GossipEnvelopesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Subsystem: "gossip",
			Name:      "envelopes_sent_total",
			Help:      "Total quorum observations broadcast to peers.",
		}),

		SinkWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Subsystem: "sink",
			Name:      "write_latency_seconds",
			Help:      "Evidence/decision sink write latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		SinkRecordsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "sink",
			Name:      "records",
			Help:      "Current number of persisted evidence records.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.EventsProcessedTotal,
		m.EventsDroppedTotal,
		m.EventQueueDepth,
		m.StateTransitionsTotal,
		m.ActiveSessions,
		m.RiskTierHistogram,
		m.RiskEvalsTotal,
		m.ActionsEmittedTotal,
		m.BudgetTokensRemaining,
		m.BudgetConsumedTotal,
		m.BudgetRefillsTotal,
		m.GossipEnvelopesReceivedTotal,
		m.GossipEnvelopesSentTotal,
		m.SinkWriteLatency,
		m.SinkRecordsTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
