package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	stripeapi "github.com/stripe/stripe-go/v72"

	"github.com/hireloop/tokenpay/internal/balance"
	"github.com/hireloop/tokenpay/internal/circuitbreaker"
	"github.com/hireloop/tokenpay/internal/intent"
	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/pricing"
	stripesvc "github.com/hireloop/tokenpay/internal/stripe"
	"github.com/hireloop/tokenpay/pkg/responders"
)

const maxBodyBytes = 64 * 1024

// createIntent issues a payment or setup authorization for the checkout
// client.
func (h *handlers) createIntent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req intent.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().Err(err).Msg("intents.invalid_body")
		responders.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.stripe.IssueIntent(r.Context(), req)
	if err != nil {
		h.writeIntentError(w, r, err)
		return
	}
	responders.JSON(w, http.StatusOK, resp)
}

func (h *handlers) writeIntentError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	if errors.Is(err, stripesvc.ErrInvalidRequest) {
		log.Warn().Err(err).Msg("intents.rejected")
		responders.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) && (stripeErr.Code == stripeapi.ErrorCodeRateLimit || stripeErr.HTTPStatusCode == http.StatusTooManyRequests) {
		// The processor pushed back; forward the backoff to the client so
		// its fetch suspension kicks in.
		log.Warn().Err(err).Msg("intents.processor_rate_limited")
		responders.RateLimited(w, "payment processor is throttling requests", 60)
		return
	}

	log.Error().Err(err).Msg("intents.issue_failed")
	responders.Error(w, http.StatusInternalServerError, "could not create payment authorization")
}

// getBalance returns the workspace token balance.
func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		responders.Error(w, http.StatusBadRequest, "customer id is required")
		return
	}

	snap, err := h.store.Balance(r.Context(), customerID)
	if errors.Is(err, balance.ErrNotFound) {
		responders.JSON(w, http.StatusOK, balanceResponse{CustomerID: customerID})
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("balance.lookup_failed")
		responders.Error(w, http.StatusInternalServerError, "could not load balance")
		return
	}
	responders.JSON(w, http.StatusOK, balanceResponse{
		CustomerID: snap.CustomerID,
		Tokens:     snap.Tokens,
		AutoTopUp:  snap.AutoTopUp,
	})
}

type balanceResponse struct {
	CustomerID string `json:"customerId"`
	Tokens     int64  `json:"tokenBalance"`
	AutoTopUp  bool   `json:"balanceAutoTopup"`
}

// pricingQuote returns the tiered price for a token quantity.
func (h *handlers) pricingQuote(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil || quantity <= 0 {
		responders.Error(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}
	responders.JSON(w, http.StatusOK, pricingResponse{
		Quantity:        quantity,
		UnitPrice:       pricing.UnitPrice(quantity),
		TotalPrice:      pricing.TotalPrice(quantity),
		DiscountPercent: pricing.DiscountPercent(quantity),
	})
}

type pricingResponse struct {
	Quantity        int64 `json:"quantity"`
	UnitPrice       int64 `json:"unitPrice"`
	TotalPrice      int64 `json:"totalPrice"`
	DiscountPercent int   `json:"discountPercent"`
}

// health reports liveness plus circuit breaker states.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(serverStartTime).Round(time.Second).String(),
		"breakers": map[string]string{
			string(circuitbreaker.ServiceStripe):  h.breaker.State(circuitbreaker.ServiceStripe),
			string(circuitbreaker.ServiceGateway): h.breaker.State(circuitbreaker.ServiceGateway),
		},
	})
}

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
