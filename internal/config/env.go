package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use the TOKENPAY_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "TOKENPAY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "TOKENPAY_ROUTE_PREFIX")
	if origins := os.Getenv("TOKENPAY_CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.CORSAllowedOrigins = splitAndTrim(origins)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "TOKENPAY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "TOKENPAY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "TOKENPAY_ENVIRONMENT")

	// Stripe config
	setIfEnv(&c.Stripe.SecretKey, "TOKENPAY_STRIPE_SECRET_KEY")
	setIfEnv(&c.Stripe.PublishableKey, "TOKENPAY_STRIPE_PUBLISHABLE_KEY")
	setIfEnv(&c.Stripe.Currency, "TOKENPAY_STRIPE_CURRENCY")
	setIfEnv(&c.Stripe.Mode, "TOKENPAY_STRIPE_MODE")

	// Checkout config
	setIfEnv(&c.Checkout.GatewayURL, "TOKENPAY_GATEWAY_URL")
	setDurationIfEnv(&c.Checkout.GatewayTimeout, "TOKENPAY_GATEWAY_TIMEOUT")
	setDurationIfEnv(&c.Checkout.StaleTTL, "TOKENPAY_CHECKOUT_STALE_TTL")
	setIntIfEnv(&c.Checkout.MaxStaleRetries, "TOKENPAY_CHECKOUT_MAX_STALE_RETRIES")
	setDurationIfEnv(&c.Checkout.RefreshInterval, "TOKENPAY_CHECKOUT_REFRESH_INTERVAL")

	// Probe config
	setIfEnv(&c.Probe.Origin, "TOKENPAY_PROBE_ORIGIN")
	setDurationIfEnv(&c.Probe.Timeout, "TOKENPAY_PROBE_TIMEOUT")
	setDurationIfEnv(&c.Probe.Interval, "TOKENPAY_PROBE_INTERVAL")

	// Balance config
	setIfEnv(&c.Balance.Backend, "TOKENPAY_BALANCE_BACKEND")
	setIfEnv(&c.Balance.PostgresURL, "TOKENPAY_BALANCE_POSTGRES_URL")
	setIfEnv(&c.Balance.MongoDBURL, "TOKENPAY_BALANCE_MONGODB_URL")
	setIfEnv(&c.Balance.MongoDBDatabase, "TOKENPAY_BALANCE_MONGODB_DATABASE")
	setIfEnv(&c.Balance.TableName, "TOKENPAY_BALANCE_TABLE_NAME")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.Enabled, "TOKENPAY_RATE_LIMIT_ENABLED")
	setIntIfEnv(&c.RateLimit.Limit, "TOKENPAY_RATE_LIMIT_LIMIT")
	setDurationIfEnv(&c.RateLimit.Window, "TOKENPAY_RATE_LIMIT_WINDOW")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "TOKENPAY_CIRCUIT_BREAKER_ENABLED")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBoolIfEnv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setIntIfEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDurationIfEnv(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			dst.Duration = parsed
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
