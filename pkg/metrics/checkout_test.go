package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.ObserveSession(OutcomeCreated, 120*time.Millisecond)
	m.ObserveSession(OutcomeStockConflict, 0)
	m.ObserveSession(OutcomeStockConflict, 0)
	m.IncOrder("paid")

	if got := testutil.ToFloat64(m.sessions.WithLabelValues(OutcomeCreated)); got != 1 {
		t.Fatalf("expected created=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.stockConflicts); got != 2 {
		t.Fatalf("expected stock conflicts=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.orders.WithLabelValues("paid")); got != 1 {
		t.Fatalf("expected paid=1, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if findMetricFamily(mfs, "pokecard_checkout_session_create_seconds") == nil {
		t.Fatalf("expected create duration histogram to be registered")
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order.paid")
	m.IncFailed("order.paid")
	m.IncFailed("order.paid")

	if got, err := fetchCounterValue(mustGather(t, reg), "pokecard_outbox_failed_total", "event_type", "order.paid"); err != nil || got != 2 {
		t.Fatalf("expected failed=2, got %f (%v)", got, err)
	}
	NewOutboxMetrics(nil).IncPublished("x")
}

func mustGather(t *testing.T, reg *prometheus.Registry) []*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	return mfs
}
