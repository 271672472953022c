package telemetry

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersAllCollectorsWithoutPanicking(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Fatal("expected a dedicated registry, got nil")
	}
}

func TestMetrics_EventsProcessedTotal_IncrementsByLabel(t *testing.T) {
	m := NewMetrics()
	m.EventsProcessedTotal.WithLabelValues("attack", "ENTRY_ENABLED").Inc()
	m.EventsProcessedTotal.WithLabelValues("attack", "ENTRY_ENABLED").Inc()
	m.EventsProcessedTotal.WithLabelValues("defense", "ENTRY_CLICKED").Inc()

	if got := testutil.ToFloat64(m.EventsProcessedTotal.WithLabelValues("attack", "ENTRY_ENABLED")); got != 2 {
		t.Errorf("attack/ENTRY_ENABLED counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsProcessedTotal.WithLabelValues("defense", "ENTRY_CLICKED")); got != 1 {
		t.Errorf("defense/ENTRY_CLICKED counter = %v, want 1", got)
	}
}

func TestMetrics_GaugesSettable(t *testing.T) {
	m := NewMetrics()
	m.BudgetTokensRemaining.Set(42)
	if got := testutil.ToFloat64(m.BudgetTokensRemaining); got != 42 {
		t.Errorf("BudgetTokensRemaining = %v, want 42", got)
	}

	m.ActiveSessions.Set(7)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 7 {
		t.Errorf("ActiveSessions = %v, want 7", got)
	}
}

func TestServeMetrics_ExposesMetricsEndpointAndHealthz(t *testing.T) {
	m := NewMetrics()
	m.BudgetTokensRemaining.Set(10)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.ServeMetrics(ctx, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ServeMetrics returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("ServeMetrics did not shut down within 2s of context cancellation")
	}
}
