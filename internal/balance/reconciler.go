package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/hireloop/tokenpay/internal/logger"
	"github.com/hireloop/tokenpay/internal/metrics"
	"github.com/hireloop/tokenpay/internal/session"
)

// Reconciler applies token credits for confirmed purchases. The payment
// already went through by the time Reconcile runs, so failures here are
// reported as reconciliation faults rather than payment failures.
type Reconciler struct {
	store   Store
	metrics *metrics.Metrics
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store, metricsCollector *metrics.Metrics) *Reconciler {
	return &Reconciler{store: store, metrics: metricsCollector}
}

// Reconcile credits the session's token quantity to its workspace, keyed by
// the confirmed authorization ID. Replaying the same authorization ID is a
// no-op. Auto-recharge sessions also flag the workspace for automatic
// top-up.
func (r *Reconciler) Reconcile(ctx context.Context, sess session.Context, authorizationID string) (bool, error) {
	log := logger.FromContext(ctx)

	applied, err := r.store.ApplyCredit(ctx, Credit{
		CustomerID:      sess.CustomerID,
		AuthorizationID: authorizationID,
		Tokens:          sess.TokenQuantity,
		Mode:            string(sess.PaymentMode),
		AppliedAt:       time.Now(),
	})
	if err != nil {
		r.metrics.ObserveReconciliationFault()
		log.Error().
			Err(err).
			Str("customer_id", sess.CustomerID).
			Str("authorization_id", authorizationID).
			Int64("tokens", sess.TokenQuantity).
			Msg("balance.reconcile_failed")
		return false, fmt.Errorf("apply credit: %w", err)
	}

	if !applied {
		log.Info().
			Str("customer_id", sess.CustomerID).
			Str("authorization_id", authorizationID).
			Msg("balance.credit_already_applied")
		return false, nil
	}

	if sess.PaymentMode == session.ModeAutoRecharge {
		if err := r.store.SetAutoTopUp(ctx, sess.CustomerID, true); err != nil {
			r.metrics.ObserveReconciliationFault()
			log.Error().
				Err(err).
				Str("customer_id", sess.CustomerID).
				Msg("balance.auto_topup_flag_failed")
			return true, fmt.Errorf("set auto topup: %w", err)
		}
	}

	r.metrics.ObserveCredit(string(sess.PaymentMode), sess.TokenQuantity)
	log.Info().
		Str("customer_id", sess.CustomerID).
		Str("authorization_id", authorizationID).
		Int64("tokens", sess.TokenQuantity).
		Str("mode", string(sess.PaymentMode)).
		Msg("balance.credit_applied")
	return true, nil
}

// Balance exposes the underlying store lookup.
func (r *Reconciler) Balance(ctx context.Context, customerID string) (Snapshot, error) {
	return r.store.Balance(ctx, customerID)
}
