// Package stripe implements the trusted server side of the intent gateway:
// it issues payment and setup intents against the processor, supersedes
// abandoned ones, and runs the initial off-session charge after a card is
// stored.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/customer"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/setupintent"

	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/config"
	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/pricing"
	"github.com/hireloop/tokenpay/internal/session"
)

// ErrInvalidRequest rejects malformed intent requests before any processor
// call.
var ErrInvalidRequest = errors.New("stripe: invalid intent request")

// Client wraps stripe-go operations used by the intent gateway.
type Client struct {
	cfg     config.StripeConfig
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// NewClient sets up stripe-go with the provided credentials.
func NewClient(cfg config.StripeConfig, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	stripeapi.Key = cfg.SecretKey
	return &Client{
		cfg:     cfg,
		breaker: breaker,
		metrics: metricsCollector,
	}
}

// IssueIntent handles one gateway request: it resolves the billing customer,
// cancels a superseded intent when a forced refresh asks for one, and issues
// the intent matching the payment mode. CreateCharge requests instead run
// the initial off-session charge for a freshly stored card.
func (c *Client) IssueIntent(ctx context.Context, req intent.Request) (*intent.Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	customerID, err := c.ensureCustomer(ctx, req.CustomerID, req.SessionID)
	if err != nil {
		return nil, err
	}

	if req.ForceNewIntent && req.PaymentIntentID != "" {
		// Best effort: a superseded intent that cannot be cancelled simply
		// expires on the processor side.
		c.cancelIntent(ctx, req.PaymentIntentID)
	}

	if req.CreateCharge {
		return c.initialCharge(ctx, req, customerID)
	}

	var resp *intent.Response
	switch session.Mode(req.PaymentType) {
	case session.ModeOneTime:
		resp, err = c.createPaymentIntent(ctx, req, customerID)
	case session.ModeAutoRecharge:
		resp, err = c.createSetupIntent(ctx, req, customerID)
	default:
		return nil, ErrInvalidRequest
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", req.SessionID).
		Str("intent_id", resp.ID).
		Str("mode", req.PaymentType).
		Int64("tokens", req.TokenAmount).
		Msg("stripe.intent_issued")
	return resp, nil
}

func validate(req intent.Request) error {
	if req.TokenAmount <= 0 {
		return fmt.Errorf("%w: token amount must be positive", ErrInvalidRequest)
	}
	if !session.Mode(req.PaymentType).Valid() {
		return fmt.Errorf("%w: unknown payment type %q", ErrInvalidRequest, req.PaymentType)
	}
	if req.CreateCharge && req.PaymentMethodID == "" {
		return fmt.Errorf("%w: initial charge requires a payment method", ErrInvalidRequest)
	}
	return nil
}

// ensureCustomer returns the existing customer id or creates a fresh billing
// customer for first-time buyers.
func (c *Client) ensureCustomer(ctx context.Context, customerID, sessionID string) (string, error) {
	if customerID != "" {
		return customerID, nil
	}

	result, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		params := &stripeapi.CustomerParams{}
		params.Context = ctx
		params.AddMetadata("session_id", sessionID)
		return customer.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return result.(*stripeapi.Customer).ID, nil
}

func (c *Client) cancelIntent(ctx context.Context, intentID string) {
	_, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		params := &stripeapi.PaymentIntentCancelParams{}
		params.Context = ctx
		return paymentintent.Cancel(intentID, params)
	})
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().
			Err(err).
			Str("intent_id", intentID).
			Msg("stripe.cancel_superseded_failed")
	}
}

func (c *Client) createPaymentIntent(ctx context.Context, req intent.Request, customerID string) (*intent.Response, error) {
	amountCents := pricing.TotalPrice(req.TokenAmount) * 100

	result, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		params := &stripeapi.PaymentIntentParams{
			Amount:             stripeapi.Int64(amountCents),
			Currency:           stripeapi.String(c.currency()),
			Customer:           stripeapi.String(customerID),
			PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		}
		params.Context = ctx
		params.AddMetadata("session_id", req.SessionID)
		params.AddMetadata("token_quantity", fmt.Sprintf("%d", req.TokenAmount))
		return paymentintent.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	pi := result.(*stripeapi.PaymentIntent)
	c.metrics.ObserveIntentIssued(string(intent.KindCharge))
	return &intent.Response{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		CustomerID:   customerID,
		Amount:       amountCents,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

func (c *Client) createSetupIntent(ctx context.Context, req intent.Request, customerID string) (*intent.Response, error) {
	result, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		params := &stripeapi.SetupIntentParams{
			Customer:           stripeapi.String(customerID),
			PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
			Usage:              stripeapi.String(string(stripeapi.SetupIntentUsageOffSession)),
		}
		params.Context = ctx
		params.AddMetadata("session_id", req.SessionID)
		params.AddMetadata("token_quantity", fmt.Sprintf("%d", req.TokenAmount))
		return setupintent.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: create setup intent: %w", err)
	}

	si := result.(*stripeapi.SetupIntent)
	c.metrics.ObserveIntentIssued(string(intent.KindSetup))
	return &intent.Response{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		CustomerID:   customerID,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

// initialCharge debits the first token purchase off-session right after a
// setup confirmation stored the card.
func (c *Client) initialCharge(ctx context.Context, req intent.Request, customerID string) (*intent.Response, error) {
	amountCents := pricing.TotalPrice(req.TokenAmount) * 100

	result, err := c.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		params := &stripeapi.PaymentIntentParams{
			Amount:        stripeapi.Int64(amountCents),
			Currency:      stripeapi.String(c.currency()),
			Customer:      stripeapi.String(customerID),
			PaymentMethod: stripeapi.String(req.PaymentMethodID),
			Confirm:       stripeapi.Bool(true),
			OffSession:    stripeapi.Bool(true),
		}
		params.Context = ctx
		params.AddMetadata("session_id", req.SessionID)
		params.AddMetadata("token_quantity", fmt.Sprintf("%d", req.TokenAmount))
		params.AddMetadata("initial_charge", "true")
		return paymentintent.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("stripe: initial charge: %w", err)
	}

	pi := result.(*stripeapi.PaymentIntent)
	log := logger.FromContext(ctx)
	log.Info().
		Str("session_id", req.SessionID).
		Str("intent_id", pi.ID).
		Int64("amount_cents", amountCents).
		Msg("stripe.initial_charge_confirmed")
	return &intent.Response{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		CustomerID:   customerID,
		Amount:       amountCents,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}

func (c *Client) currency() string {
	if c.cfg.Currency != "" {
		return c.cfg.Currency
	}
	return "usd"
}
