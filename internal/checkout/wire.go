package checkout

import (
	"github.com/rs/zerolog"

	"github.com/hireloop/tokenpay/internal/balance"
	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/gateway"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/probe"
	"github.com/hireloop/tokenpay/internal/processor"
)

// NewFromConfig assembles the production checkout stack: gateway client,
// stripe processor, balance reconciler, and connectivity probe. The caller
// owns the returned probe's lifecycle (Start/Close).
func NewFromConfig(cfg *config.Config, store balance.Store, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics, log zerolog.Logger) (*Orchestrator, *probe.Probe) {
	gw := gateway.NewClient(
		cfg.Checkout.GatewayURL,
		cfg.Checkout.GatewayTimeout.Duration,
		gateway.WithBreaker(breaker),
		gateway.WithMetrics(metricsCollector),
	)
	proc := processor.NewStripeProcessor(cfg.Stripe.SecretKey, breaker, metricsCollector)
	reconciler := balance.NewReconciler(store, metricsCollector)
	connectivity := probe.New(cfg.Probe.Origin, cfg.Probe.Timeout.Duration, log, metricsCollector)

	orch := New(gw, proc, reconciler,
		WithProbe(connectivity),
		WithMetrics(metricsCollector),
		WithLogger(log),
		WithStaleTTL(cfg.Checkout.StaleTTL.Duration),
		WithMaxStaleRetries(cfg.Checkout.MaxStaleRetries),
		WithRefreshInterval(cfg.Checkout.RefreshInterval.Duration),
	)
	return orch, connectivity
}
