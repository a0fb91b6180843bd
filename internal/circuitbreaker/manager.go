package circuitbreaker

import (
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/hireloop/tokenpay/internal/config"
)

// ServiceType identifies external services for circuit breaker isolation.
type ServiceType string

const (
	// ServiceStripe guards direct payment processor calls.
	ServiceStripe ServiceType = "stripe_api"
	// ServiceGateway guards calls to the trusted intent endpoint.
	ServiceGateway ServiceType = "gateway"
)

// Manager holds one circuit breaker per external service so a degraded
// processor cannot cascade into gateway failures and vice versa.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	enabled  bool
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		enabled:  cfg.Enabled,
	}
	if !cfg.Enabled {
		return m
	}

	m.breakers[ServiceStripe] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceStripe), cfg.StripeAPI))
	m.breakers[ServiceGateway] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceGateway), cfg.Gateway))
	return m
}

// Execute wraps a call with circuit breaker protection. When breakers are
// disabled or the service is unknown, the call passes through directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if m == nil || !m.enabled {
		return fn()
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker for health reporting.
func (m *Manager) State(service ServiceType) string {
	if m == nil || !m.enabled {
		return "disabled"
	}
	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}
	return breaker.State().String()
}

func toSettings(name string, cfg config.BreakerServiceConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Duration,
		Timeout:     cfg.Timeout.Duration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				if failureRate >= cfg.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuitbreaker.state_change")
		},
	}
}
