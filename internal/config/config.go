package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	defaultBreaker := BreakerServiceConfig{
		MaxRequests:         3,
		Interval:            Duration{Duration: 60 * time.Second},
		Timeout:             Duration{Duration: 30 * time.Second},
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}

	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Stripe: StripeConfig{
			Mode:     "test",
			Currency: "usd",
		},
		Checkout: CheckoutConfig{
			GatewayURL:      "http://localhost:8080/checkout/intents",
			GatewayTimeout:  Duration{Duration: 10 * time.Second},
			StaleTTL:        Duration{Duration: 20 * time.Second},
			MaxStaleRetries: 3,
			RefreshInterval: Duration{Duration: 2 * time.Second},
		},
		Probe: ProbeConfig{
			Origin:   "https://js.stripe.com",
			Timeout:  Duration{Duration: 5 * time.Second},
			Interval: Duration{Duration: 1 * time.Minute},
		},
		Balance: BalanceConfig{
			TableName: "workspace_balances",
			PostgresPool: PostgresPoolConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration{Duration: 5 * time.Minute},
			},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   60,
			Window:  Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:   true,
			StripeAPI: defaultBreaker,
			Gateway:   defaultBreaker,
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// validate rejects configurations that cannot run.
func (c *Config) validate() error {
	if c.Checkout.StaleTTL.Duration <= 0 {
		return fmt.Errorf("checkout.stale_ttl must be positive")
	}
	if c.Checkout.MaxStaleRetries < 0 {
		return fmt.Errorf("checkout.max_stale_retries must not be negative")
	}
	if c.Checkout.RefreshInterval.Duration <= 0 {
		return fmt.Errorf("checkout.refresh_interval must be positive")
	}
	switch c.Balance.Backend {
	case "", "memory":
	case "postgres":
		if c.Balance.PostgresURL == "" {
			return fmt.Errorf("balance backend postgres requires postgres_url")
		}
	case "mongodb":
		if c.Balance.MongoDBURL == "" {
			return fmt.Errorf("balance backend mongodb requires mongodb_url")
		}
	default:
		return fmt.Errorf("unknown balance backend: %s", c.Balance.Backend)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("rate_limit.limit must be positive when enabled")
		}
		if c.RateLimit.Window.Duration <= 0 {
			return fmt.Errorf("rate_limit.window must be positive when enabled")
		}
	}
	return nil
}
