// Package intent defines the payment authorization model shared by the
// gateway client, the gateway server handlers, and the checkout orchestrator.
package intent

import "time"

// Kind distinguishes the two authorization flavours issued by the processor.
type Kind string

const (
	// KindCharge is an immediate one-time debit authorization.
	KindCharge Kind = "charge"
	// KindSetup stores a card for future off-session debits.
	KindSetup Kind = "setup"
)

// PaymentAuthorization is a time-limited, processor-issued object representing
// permission to charge or to store a card. It is consumed at most once.
type PaymentAuthorization struct {
	ID              string
	Secret          string // client-side confirmation credential, empty until fetched
	Kind            Kind
	IssuedAt        time.Time
	ExpiresAt       time.Time // zero if the server did not provide one
	OwnerCustomerID string
	Amount          int64 // minor units; zero for setup authorizations
}

// HasSecret reports whether the authorization carries a confirmation secret.
func (a *PaymentAuthorization) HasSecret() bool {
	return a != nil && a.Secret != ""
}

// Request is the wire request accepted by the gateway endpoint.
type Request struct {
	PaymentType     string `json:"paymentType"` // "one-time" | "auto-recharge"
	TokenAmount     int64  `json:"tokenAmount"`
	CustomerID      string `json:"customerId,omitempty"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	ForceNewIntent  bool   `json:"forceNewIntent"`
	CreateCharge    bool   `json:"createCharge,omitempty"`
	SessionID       string `json:"sessionId"`
}

// Response is the wire success response from the gateway endpoint.
type Response struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	CustomerID   string `json:"customerId,omitempty"`
	Amount       int64  `json:"amount"`
	Timestamp    int64  `json:"timestamp"` // unix milliseconds at issue time
}

// ErrorResponse is the wire failure response from the gateway endpoint.
type ErrorResponse struct {
	Error       string `json:"error"`
	RateLimited bool   `json:"rateLimited,omitempty"`
	RetryAfter  int    `json:"retryAfter,omitempty"` // seconds
}
