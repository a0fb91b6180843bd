// Package httpserver exposes the trusted intent gateway: the endpoint the
// checkout client calls to obtain payment authorizations, plus balance
// lookup, pricing quotes, health, and metrics.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hireloop/tokenpay/internal/balance"
	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/ratelimit"
	stripesvc "github.com/hireloop/tokenpay/internal/stripe"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg     *config.Config
	stripe  *stripesvc.Client
	store   balance.Store
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New builds the HTTP server with the configured router.
func New(cfg *config.Config, stripeClient *stripesvc.Client, store balance.Store, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:     cfg,
			stripe:  stripeClient,
			store:   store,
			breaker: breaker,
			metrics: metricsCollector,
			logger:  appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (s *Server) configureRouter(router chi.Router) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Logging before RequestID so the request logger picks up the id.
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(s.metricsMiddleware)

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints with a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/health", s.health)
		r.Handle(prefix+"/metrics", promhttp.Handler())
		r.Get(prefix+"/checkout/pricing", s.pricingQuote)
	})

	// Payment endpoints: rate limited, longer timeout for processor calls.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(ratelimit.IPLimiter(cfg.RateLimit, s.metrics))
		r.Post(prefix+"/checkout/intents", s.createIntent)
		r.Get(prefix+"/checkout/balance/{customerID}", s.getBalance)
	})
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.httpServer.Addr).
		Msg("httpserver.starting")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// metricsMiddleware records request counts and latency per route.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.ObserveGatewayRequest(statusClass(ww.Status()), time.Since(start))
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "server_error"
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 400:
		return "client_error"
	default:
		return "ok"
	}
}
