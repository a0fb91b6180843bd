// Package gateway is a stateless client for the trusted server endpoint that
// issues payment authorizations. It normalizes responses and returns typed
// errors; callers own the returned authorization.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/httputil"
	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/outcome"
	"github.com/hireloop/tokenpay/internal/session"
)

// ErrNoSecret is returned when the gateway responds without a client secret.
var ErrNoSecret = errors.New("gateway: authorization missing client secret")

// ErrInvalidMode is returned for payment modes the gateway does not accept.
var ErrInvalidMode = errors.New("gateway: invalid payment mode")

// ErrInvalidQuantity is returned for non-positive token quantities.
var ErrInvalidQuantity = errors.New("gateway: token quantity must be a positive integer")

// ServerError is a non-rate-limit failure response from the gateway.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: status %d", e.StatusCode)
}

// Client requests payment authorizations from the trusted endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
	metrics    *metrics.Metrics
}

// Option customizes the client.
type Option func(*Client)

// WithBreaker guards gateway calls with the given circuit breaker manager.
func WithBreaker(breaker *circuitbreaker.Manager) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithMetrics records gateway request observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the default HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a gateway client for the given endpoint URL.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: httputil.NewClient(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestAuthorization asks the gateway for a payment authorization.
// A one-time mode yields a charge authorization, auto-recharge a setup
// authorization. forceNew tells the server to abandon any intent it may have
// cached for this session and mint a fresh one.
func (c *Client) RequestAuthorization(ctx context.Context, mode session.Mode, quantity int64, customerID string, forceNew bool, sessionID string) (*intent.PaymentAuthorization, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	req := intent.Request{
		PaymentType:    string(mode),
		TokenAmount:    quantity,
		CustomerID:     customerID,
		ForceNewIntent: forceNew,
		SessionID:      sessionID,
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.ClientSecret == "" {
		return nil, ErrNoSecret
	}

	kind := intent.KindCharge
	if mode == session.ModeAutoRecharge {
		kind = intent.KindSetup
	}

	issuedAt := time.Now()
	if resp.Timestamp > 0 {
		issuedAt = time.UnixMilli(resp.Timestamp)
	}

	return &intent.PaymentAuthorization{
		ID:              resp.ID,
		Secret:          resp.ClientSecret,
		Kind:            kind,
		IssuedAt:        issuedAt,
		OwnerCustomerID: resp.CustomerID,
		Amount:          resp.Amount,
	}, nil
}

// CreateInitialCharge asks the gateway to perform the first off-session
// charge against a payment method stored during setup confirmation.
func (c *Client) CreateInitialCharge(ctx context.Context, quantity int64, customerID, paymentMethodID, sessionID string) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if customerID == "" || paymentMethodID == "" {
		return &ServerError{StatusCode: 0, Message: "initial charge requires customer and payment method"}
	}

	req := intent.Request{
		PaymentType:     string(session.ModeAutoRecharge),
		TokenAmount:     quantity,
		CustomerID:      customerID,
		PaymentMethodID: paymentMethodID,
		CreateCharge:    true,
		SessionID:       sessionID,
	}
	_, err := c.post(ctx, req)
	return err
}

// post sends the wire request and normalizes the response.
func (c *Client) post(ctx context.Context, req intent.Request) (*intent.Response, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	result, err := c.breaker.Execute(circuitbreaker.ServiceGateway, func() (interface{}, error) {
		return c.doPost(ctx, req)
	})

	outcomeLabel := "success"
	if err != nil {
		outcomeLabel = "error"
		var rateLimited *outcome.RateLimitedError
		if errors.As(err, &rateLimited) {
			outcomeLabel = "rate_limited"
		}
		log.Warn().
			Err(err).
			Str("session_id", req.SessionID).
			Bool("force_new", req.ForceNewIntent).
			Msg("gateway.request_failed")
	}
	c.metrics.ObserveGatewayRequest(outcomeLabel, time.Since(start))

	if err != nil {
		return nil, err
	}
	return result.(*intent.Response), nil
}

func (c *Client) doPost(ctx context.Context, req intent.Request) (*intent.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway: send request: %w", err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &outcome.RateLimitedError{RetryAfter: retryAfter(httpResp, payload)}
	}
	if httpResp.StatusCode >= 400 {
		var errResp intent.ErrorResponse
		_ = json.Unmarshal(payload, &errResp)
		return nil, &ServerError{StatusCode: httpResp.StatusCode, Message: errResp.Error}
	}

	var resp intent.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	return &resp, nil
}

// retryAfter resolves the backoff window from the Retry-After header,
// falling back to the response body, then to a one minute default.
func retryAfter(resp *http.Response, payload []byte) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var errResp intent.ErrorResponse
	if err := json.Unmarshal(payload, &errResp); err == nil && errResp.RetryAfter > 0 {
		return time.Duration(errResp.RetryAfter) * time.Second
	}
	return time.Minute
}
