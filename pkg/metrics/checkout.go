package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout session outcomes.
const (
	OutcomeCreated       = "created"
	OutcomeReplayed      = "replayed"
	OutcomeStockConflict = "stock_conflict"
	OutcomeInvalid       = "invalid"
	OutcomeProviderError = "provider_error"
)

// CheckoutMetrics tracks session creation and order finalisation.
type CheckoutMetrics struct {
	sessions       *prometheus.CounterVec
	stockConflicts prometheus.Counter
	createDuration prometheus.Histogram
	orders         *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_created_total",
			Help:      "Checkout session create requests by outcome.",
		}, []string{"outcome"}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_stock_conflicts_total",
			Help:      "Checkout attempts rejected because stock no longer covered the cart.",
		}),
		createDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_session_create_seconds",
			Help:      "Time spent creating a checkout session, provider call included.",
			Buckets:   prometheus.DefBuckets,
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_finalized_total",
			Help:      "Payment webhooks processed by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.sessions, m.stockConflicts, m.createDuration, m.orders)
	return m
}

// ObserveSession records the outcome and duration of one create request.
func (m *CheckoutMetrics) ObserveSession(outcome string, duration time.Duration) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeStockConflict {
		m.stockConflicts.Inc()
	}
	if duration > 0 {
		m.createDuration.Observe(duration.Seconds())
	}
}

// IncOrder counts one finalisation attempt ("paid", "duplicate", "stock_conflict", "expired").
func (m *CheckoutMetrics) IncOrder(outcome string) {
	if m == nil || m.orders == nil {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(outcome)).Inc()
}
