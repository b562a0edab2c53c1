package orderstate

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"marketplace-orders/internal/domain"
)

type stubStatusStore struct {
	stored domain.OrderStatus
	items  []domain.OrderStatus
	writes int
}

func (s *stubStatusStore) RederiveStatus(_ context.Context, _ string, derive func([]domain.OrderStatus) domain.OrderStatus) (domain.OrderStatus, domain.OrderStatus, error) {
	before := s.stored
	after := derive(s.items)
	if after != before {
		s.stored = after
		s.writes++
	}
	return before, after, nil
}

type countingRecorder struct{ n int }

func (c *countingRecorder) StatusMismatch() { c.n++ }

func TestReconcileRepairsDrift(t *testing.T) {
	store := &stubStatusStore{
		stored: domain.OrderPending,
		items:  []domain.OrderStatus{domain.OrderShipped, domain.OrderDelivered},
	}
	rec := &countingRecorder{}
	var buf bytes.Buffer
	r := NewReconciler(store, rec, log.New(&buf, "", 0))

	res, err := r.Reconcile(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !res.Repaired || res.Derived != domain.OrderShipped {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.stored != domain.OrderShipped || store.writes != 1 {
		t.Fatalf("expected one status write, got %d (%s)", store.writes, store.stored)
	}
	if rec.n != 1 {
		t.Fatalf("expected mismatch to be counted")
	}
	if !strings.Contains(buf.String(), "order ORD-1 status pending") {
		t.Fatalf("expected mismatch to be logged, got %q", buf.String())
	}

	res, err = r.Reconcile(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if res.Repaired || store.writes != 1 {
		t.Fatalf("second reconcile should be a no-op, got %+v writes=%d", res, store.writes)
	}
}
