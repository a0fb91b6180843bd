// Package processor abstracts the external payment processor SDK: payment
// method tokenization, charge confirmation, and setup confirmation.
package processor

import "context"

// CardDetails is the card input collected by the checkout UI.
type CardDetails struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVC      string
}

// Status is the terminal state of a confirmation attempt.
type Status string

const (
	// StatusSucceeded means the authorization was consumed and money moved
	// (or the card was stored, for setup).
	StatusSucceeded Status = "succeeded"
	// StatusRequiresAction means the processor demands a client-side
	// challenge (e.g. strong customer authentication) before completing.
	StatusRequiresAction Status = "requires_action"
	// StatusOther covers every remaining processor status; treated as a
	// failed confirmation.
	StatusOther Status = "other"
)

// ConfirmResult is the normalized outcome of a confirmation call.
type ConfirmResult struct {
	Status Status
	// PaymentMethodID is the processor-issued payment method, populated on
	// setup confirmations so the initial off-session charge can reference it.
	PaymentMethodID string
	// ActionSecret is the client secret to hand to the processor's
	// client-side challenge flow when Status is StatusRequiresAction.
	ActionSecret string
}

// Processor is the minimal surface of the external payment processor the
// orchestrator needs. All calls are blocking network operations.
type Processor interface {
	// CreatePaymentMethod tokenizes card details into a payment method id.
	CreatePaymentMethod(ctx context.Context, card CardDetails) (string, error)

	// ConfirmPayment finalizes a charge authorization with a payment method.
	ConfirmPayment(ctx context.Context, authorizationID, paymentMethodID string) (ConfirmResult, error)

	// ConfirmSetup finalizes a setup authorization directly with card data;
	// the processor issues the payment method as part of confirmation.
	ConfirmSetup(ctx context.Context, authorizationID string, card CardDetails) (ConfirmResult, error)
}
