// Package ratelimit guards the intent endpoint against request floods. The
// 429 responses carry both a Retry-After header and a structured body so
// the checkout client can suspend fetches for the exact window.
package ratelimit

import (
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/pkg/responders"
)

// IPLimiter creates a per-IP rate limiter middleware for the intent
// endpoint.
func IPLimiter(cfg config.RateLimitConfig, metricsCollector *metrics.Metrics) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	windowSeconds := int(cfg.Window.Duration.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	return httprate.Limit(
		cfg.Limit,
		cfg.Window.Duration,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metricsCollector.ObserveRateLimitReject()
			responders.RateLimited(w, "too many intent requests, please wait before retrying", windowSeconds)
		}),
	)
}
