package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the token checkout subsystem.
type Metrics struct {
	// Intent lifecycle metrics
	IntentsIssuedTotal    *prometheus.CounterVec
	IntentRefreshesTotal  *prometheus.CounterVec
	GatewayRequestsTotal  *prometheus.CounterVec
	GatewayDuration       *prometheus.HistogramVec
	RateLimitRejectsTotal prometheus.Counter

	// Confirmation metrics
	ConfirmationsTotal   *prometheus.CounterVec
	ConfirmationDuration *prometheus.HistogramVec
	StaleRetriesTotal    prometheus.Counter

	// Balance metrics
	CreditsAppliedTotal       *prometheus.CounterVec
	TokensCreditedTotal       prometheus.Counter
	ReconciliationFaultsTotal prometheus.Counter

	// Probe metrics
	ProbeChecksTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		IntentsIssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_intents_issued_total",
				Help: "Total number of payment authorizations issued",
			},
			[]string{"kind"},
		),
		IntentRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_intent_refreshes_total",
				Help: "Total number of authorization refreshes by reason",
			},
			[]string{"reason"},
		),
		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_gateway_requests_total",
				Help: "Total number of intent gateway requests",
			},
			[]string{"outcome"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenpay_gateway_request_duration_seconds",
				Help:    "Duration of intent gateway requests (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),
		RateLimitRejectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenpay_rate_limit_rejects_total",
				Help: "Total number of requests rejected by the intent endpoint rate limiter",
			},
		),
		ConfirmationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_confirmations_total",
				Help: "Total number of authorization confirmations by kind and status",
			},
			[]string{"kind", "status"},
		),
		ConfirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenpay_confirmation_duration_seconds",
				Help:    "Time taken to confirm an authorization with the processor",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		StaleRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenpay_stale_retries_total",
				Help: "Total number of automatic stale-authorization refetches",
			},
		),
		CreditsAppliedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_credits_applied_total",
				Help: "Total number of balance credits applied by payment mode",
			},
			[]string{"mode"},
		),
		TokensCreditedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenpay_tokens_credited_total",
				Help: "Total number of tokens credited to balances",
			},
		),
		ReconciliationFaultsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tokenpay_reconciliation_faults_total",
				Help: "Total number of confirmed charges whose balance update failed",
			},
		),
		ProbeChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpay_probe_checks_total",
				Help: "Total number of processor connectivity probes by result",
			},
			[]string{"result"},
		),
	}
}

// ObserveGatewayRequest records an intent gateway request and its outcome.
func (m *Metrics) ObserveGatewayRequest(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(outcome).Inc()
	m.GatewayDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveConfirmation records a processor confirmation attempt.
func (m *Metrics) ObserveConfirmation(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.WithLabelValues(kind, status).Inc()
	m.ConfirmationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveIntentIssued records a newly issued authorization.
func (m *Metrics) ObserveIntentIssued(kind string) {
	if m == nil {
		return
	}
	m.IntentsIssuedTotal.WithLabelValues(kind).Inc()
}

// ObserveRefresh records an authorization refresh with its trigger.
func (m *Metrics) ObserveRefresh(reason string) {
	if m == nil {
		return
	}
	m.IntentRefreshesTotal.WithLabelValues(reason).Inc()
}

// ObserveStaleRetry records one automatic stale-authorization refetch.
func (m *Metrics) ObserveStaleRetry() {
	if m == nil {
		return
	}
	m.StaleRetriesTotal.Inc()
}

// ObserveCredit records a successful balance credit.
func (m *Metrics) ObserveCredit(mode string, quantity int64) {
	if m == nil {
		return
	}
	m.CreditsAppliedTotal.WithLabelValues(mode).Inc()
	m.TokensCreditedTotal.Add(float64(quantity))
}

// ObserveReconciliationFault records a credit that failed to persist after
// a confirmed charge.
func (m *Metrics) ObserveReconciliationFault() {
	if m == nil {
		return
	}
	m.ReconciliationFaultsTotal.Inc()
}

// ObserveProbe records a connectivity probe result.
func (m *Metrics) ObserveProbe(reachable bool) {
	if m == nil {
		return
	}
	result := "reachable"
	if !reachable {
		result = "blocked"
	}
	m.ProbeChecksTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitReject records a request rejected by the rate limiter.
func (m *Metrics) ObserveRateLimitReject() {
	if m == nil {
		return
	}
	m.RateLimitRejectsTotal.Inc()
}
