package processor

import (
	"context"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/paymentmethod"
	"github.com/stripe/stripe-go/v72/setupintent"

	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/metrics"
)

// StripeProcessor implements Processor on stripe-go.
type StripeProcessor struct {
	breaker *circuitbreaker.Manager
	metrics *metrics.Metrics
}

// NewStripeProcessor sets up stripe-go with the provided secret key.
func NewStripeProcessor(secretKey string, breaker *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *StripeProcessor {
	stripeapi.Key = secretKey
	return &StripeProcessor{
		breaker: breaker,
		metrics: metricsCollector,
	}
}

// CreatePaymentMethod tokenizes card details into a Stripe payment method.
func (p *StripeProcessor) CreatePaymentMethod(ctx context.Context, card CardDetails) (string, error) {
	params := &stripeapi.PaymentMethodParams{
		Type: stripeapi.String("card"),
		Card: &stripeapi.PaymentMethodCardParams{
			Number:   stripeapi.String(card.Number),
			ExpMonth: stripeapi.String(card.ExpMonth),
			ExpYear:  stripeapi.String(card.ExpYear),
			CVC:      stripeapi.String(card.CVC),
		},
	}
	params.Context = ctx

	result, err := p.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		return paymentmethod.New(params)
	})
	if err != nil {
		return "", err
	}
	return result.(*stripeapi.PaymentMethod).ID, nil
}

// ConfirmPayment finalizes a charge authorization with a payment method.
func (p *StripeProcessor) ConfirmPayment(ctx context.Context, authorizationID, paymentMethodID string) (ConfirmResult, error) {
	start := time.Now()
	params := &stripeapi.PaymentIntentConfirmParams{
		PaymentMethod: stripeapi.String(paymentMethodID),
	}
	params.Context = ctx

	result, err := p.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		return paymentintent.Confirm(authorizationID, params)
	})
	if err != nil {
		p.metrics.ObserveConfirmation(string(intent.KindCharge), "error", time.Since(start))
		return ConfirmResult{}, err
	}

	pi := result.(*stripeapi.PaymentIntent)
	res := ConfirmResult{Status: paymentStatus(pi.Status)}
	if pi.PaymentMethod != nil {
		res.PaymentMethodID = pi.PaymentMethod.ID
	}
	if res.Status == StatusRequiresAction {
		res.ActionSecret = pi.ClientSecret
	}
	p.metrics.ObserveConfirmation(string(intent.KindCharge), string(res.Status), time.Since(start))
	return res, nil
}

// ConfirmSetup finalizes a setup authorization with card data. The card is
// tokenized inline and attached through confirmation, so callers see a single
// operation and receive the issued payment method id.
func (p *StripeProcessor) ConfirmSetup(ctx context.Context, authorizationID string, card CardDetails) (ConfirmResult, error) {
	start := time.Now()

	paymentMethodID, err := p.CreatePaymentMethod(ctx, card)
	if err != nil {
		p.metrics.ObserveConfirmation(string(intent.KindSetup), "error", time.Since(start))
		return ConfirmResult{}, err
	}

	params := &stripeapi.SetupIntentConfirmParams{
		PaymentMethod: stripeapi.String(paymentMethodID),
	}
	params.Context = ctx

	result, err := p.breaker.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
		return setupintent.Confirm(authorizationID, params)
	})
	if err != nil {
		p.metrics.ObserveConfirmation(string(intent.KindSetup), "error", time.Since(start))
		return ConfirmResult{}, err
	}

	si := result.(*stripeapi.SetupIntent)
	res := ConfirmResult{
		Status:          setupStatus(si.Status),
		PaymentMethodID: paymentMethodID,
	}
	if si.PaymentMethod != nil {
		res.PaymentMethodID = si.PaymentMethod.ID
	}
	if res.Status == StatusRequiresAction {
		res.ActionSecret = si.ClientSecret
	}
	p.metrics.ObserveConfirmation(string(intent.KindSetup), string(res.Status), time.Since(start))
	return res, nil
}

func paymentStatus(status stripeapi.PaymentIntentStatus) Status {
	switch status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripeapi.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction
	default:
		return StatusOther
	}
}

func setupStatus(status stripeapi.SetupIntentStatus) Status {
	switch status {
	case stripeapi.SetupIntentStatusSucceeded:
		return StatusSucceeded
	case stripeapi.SetupIntentStatusRequiresAction:
		return StatusRequiresAction
	default:
		return StatusOther
	}
}
