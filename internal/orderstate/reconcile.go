package orderstate

import (
	"context"
	"io"
	"log"

	"marketplace-orders/internal/domain"
)

type statusStore interface {
	// RederiveStatus locks the order, applies derive to its item statuses and
	// writes the result when it differs from the stored status.
	RederiveStatus(ctx context.Context, orderID string, derive func([]domain.OrderStatus) domain.OrderStatus) (stored, derived domain.OrderStatus, err error)
}

type mismatchRecorder interface {
	StatusMismatch()
}

// Reconciler repairs orders whose cached status drifted from their items.
type Reconciler struct {
	store   statusStore
	metrics mismatchRecorder
	logger  *log.Logger
}

func NewReconciler(store statusStore, metrics mismatchRecorder, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reconciler{store: store, metrics: metrics, logger: logger}
}

type Result struct {
	OrderID  string             `json:"orderId"`
	Stored   domain.OrderStatus `json:"stored"`
	Derived  domain.OrderStatus `json:"derived"`
	Repaired bool               `json:"repaired"`
}

// Reconcile re-runs the derivation for one order. A mismatch is repaired and
// logged as a consistency violation; it is not returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) (Result, error) {
	stored, derived, err := r.store.RederiveStatus(ctx, orderID, Derive)
	if err != nil {
		return Result{}, err
	}
	res := Result{OrderID: orderID, Stored: stored, Derived: derived, Repaired: stored != derived}
	if res.Repaired {
		r.logger.Printf("reconcile: %v", domain.Consistencyf("order %s status %s, items derive %s", orderID, stored, derived))
		if r.metrics != nil {
			r.metrics.StatusMismatch()
		}
	}
	return res, nil
}
