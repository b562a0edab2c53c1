package order

import (
	"context"
	"errors"
	"sort"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/orderstate"
	outboxrepo "marketplace-orders/internal/repository/outbox"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
)

func (r *postgresRepo) Update(ctx context.Context, orderID string, fn Mutation) (*domain.Order, error) {
	return r.mutate(ctx, "update", func(ctx context.Context, tx pgx.Tx) (string, []domain.OutboxTask, error) {
		o, err := loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return "", nil, err
		}
		change, err := fn(o)
		if err != nil || change == nil {
			return o.ID, nil, err
		}
		tasks, err := applyOrderChange(ctx, tx, o, change)
		return o.ID, tasks, err
	})
}

func (r *postgresRepo) UpdatePayment(ctx context.Context, orderID string, fn PaymentMutation) (*domain.Order, error) {
	return r.mutate(ctx, "update payment", func(ctx context.Context, tx pgx.Tx) (string, []domain.OutboxTask, error) {
		return mutatePayment(ctx, tx, orderID, fn)
	})
}

func (r *postgresRepo) UpdatePaymentByTransaction(ctx context.Context, transactionID string, fn PaymentMutation) (*domain.Order, error) {
	return r.mutate(ctx, "update payment by transaction", func(ctx context.Context, tx pgx.Tx) (string, []domain.OutboxTask, error) {
		var orderID string
		err := tx.QueryRow(ctx, `SELECT order_id FROM payments WHERE gateway_transaction_id = $1`, transactionID).Scan(&orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", nil, domain.ErrNotFound
			}
			return "", nil, err
		}
		return mutatePayment(ctx, tx, orderID, fn)
	})
}

func (r *postgresRepo) RederiveStatus(ctx context.Context, orderID string, derive func([]domain.OrderStatus) domain.OrderStatus) (domain.OrderStatus, domain.OrderStatus, error) {
	var stored, derived domain.OrderStatus
	err := crdbpgx.ExecuteTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		o, err := loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		stored, derived = o.Status, derive(o.ItemStatuses())
		if stored == derived {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, string(derived))
		return err
	})
	if err != nil {
		r.logger.Printf("order repo: rederive order_id=%s error=%v", orderID, err)
		return "", "", err
	}
	return stored, derived, nil
}

type txBody func(ctx context.Context, tx pgx.Tx) (orderID string, tasks []domain.OutboxTask, err error)

// mutate runs body in a retried transaction, hands committed tasks to the
// sink and returns the order as committed.
func (r *postgresRepo) mutate(ctx context.Context, action string, body txBody) (*domain.Order, error) {
	var (
		orderID string
		tasks   []domain.OutboxTask
	)
	err := crdbpgx.ExecuteTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		orderID, tasks, err = body(ctx, tx)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("order repo: %s order_id=%s error=%v", action, orderID, err)
		}
		return nil, err
	}
	if len(tasks) > 0 && r.sink != nil {
		r.sink.Schedule(ctx, tasks)
	}
	return r.Get(ctx, orderID)
}

func mutatePayment(ctx context.Context, tx pgx.Tx, orderID string, fn PaymentMutation) (string, []domain.OutboxTask, error) {
	o, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return "", nil, err
	}
	change, err := fn(o)
	if err != nil || change == nil {
		return o.ID, nil, err
	}
	if err := applyPaymentChange(ctx, tx, o, change); err != nil {
		return o.ID, nil, err
	}

	var tasks []domain.OutboxTask
	if change.Order != nil {
		tasks, err = applyOrderChange(ctx, tx, o, change.Order)
		if err != nil {
			return o.ID, nil, err
		}
	}
	more, err := outboxrepo.InsertTx(ctx, tx, change.Tasks)
	if err != nil {
		return o.ID, nil, err
	}
	return o.ID, append(tasks, more...), nil
}

func applyPaymentChange(ctx context.Context, tx pgx.Tx, o *domain.Order, c *domain.PaymentChange) error {
	if o.Payment == nil {
		if c.Status != domain.PaymentPending {
			return domain.Consistencyf("order %s has no payment to move to %s", o.ID, c.Status)
		}
		const ins = `
INSERT INTO payments (order_id, amount, currency, status, gateway_transaction_id, client_secret, gateway_response)
VALUES ($1, $2, $3, 'pending', NULLIF($4, ''), $5, $6)
RETURNING id, updated_at`
		p := domain.Payment{
			OrderID:              o.ID,
			Amount:               o.TotalAmount,
			Currency:             o.Currency,
			Status:               domain.PaymentPending,
			GatewayTransactionID: c.GatewayTransactionID,
			ClientSecret:         c.ClientSecret,
			GatewayResponse:      c.GatewayResponse,
		}
		if err := tx.QueryRow(ctx, ins, p.OrderID, p.Amount, p.Currency, p.GatewayTransactionID, p.ClientSecret, nullJSON(p.GatewayResponse)).
			Scan(&p.ID, &p.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.Conflictf("payment for order %s already exists", o.ID)
			}
			return err
		}
		o.Payment = &p
		return nil
	}

	p := o.Payment
	next := c.Status
	if next == "" {
		next = p.Status
	}
	if err := domain.CheckPaymentTransition(p.Status, next); err != nil {
		return err
	}
	refunded := p.RefundAmount + c.RefundDelta
	if c.RefundDelta < 0 || refunded > p.Amount {
		return domain.Consistencyf("refund of %d exceeds payment %s amount %d", refunded, p.ID, p.Amount)
	}

	const upd = `
UPDATE payments
SET status = $2,
    gateway_transaction_id = COALESCE(NULLIF($3, ''), gateway_transaction_id),
    client_secret = COALESCE(NULLIF($4, ''), client_secret),
    refund_amount = $5,
    failure_code = $6,
    failure_message = $7,
    gateway_response = COALESCE($8, gateway_response),
    updated_at = now()
WHERE id = $1
RETURNING updated_at`
	failureCode, failureMsg := c.FailureCode, c.FailureMessage
	if next != domain.PaymentFailed {
		failureCode, failureMsg = "", ""
	}
	if err := tx.QueryRow(ctx, upd, p.ID, string(next), c.GatewayTransactionID, c.ClientSecret, refunded,
		failureCode, failureMsg, nullJSON(c.GatewayResponse)).Scan(&p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Conflictf("gateway transaction %s already belongs to another payment", c.GatewayTransactionID)
		}
		return err
	}
	p.Status = next
	p.RefundAmount = refunded
	p.FailureCode, p.FailureMessage = failureCode, failureMsg
	if c.GatewayTransactionID != "" {
		p.GatewayTransactionID = c.GatewayTransactionID
	}
	if c.ClientSecret != "" {
		p.ClientSecret = c.ClientSecret
	}
	return nil
}

// applyOrderChange validates and writes item transitions, restocks, records a
// shipment, re-derives the order status and inserts outbox tasks.
func applyOrderChange(ctx context.Context, tx pgx.Tx, o *domain.Order, c *domain.OrderChange) ([]domain.OutboxTask, error) {
	itemIDs := make([]string, 0, len(c.Items))
	for id := range c.Items {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	index := make(map[string]int, len(o.Items))
	for i, it := range o.Items {
		index[it.ID] = i
	}

	for _, id := range itemIDs {
		i, ok := index[id]
		if !ok {
			return nil, domain.NotFoundf("order item %s not found", id)
		}
		it := &o.Items[i]
		next := c.Items[id]
		if err := domain.CheckItemTransition(it.Status, next); err != nil {
			return nil, err
		}
		if it.Status == next {
			continue
		}
		if err := tx.QueryRow(ctx, `UPDATE order_items SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
			id, string(next)).Scan(&it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Status = next
	}

	restock := make([]domain.OrderItem, 0, len(c.Restock))
	for _, id := range c.Restock {
		i, ok := index[id]
		if !ok {
			return nil, domain.NotFoundf("order item %s not found", id)
		}
		restock = append(restock, o.Items[i])
	}
	sort.Slice(restock, func(i, j int) bool { return restock[i].OfferID < restock[j].OfferID })
	for _, it := range restock {
		if _, err := tx.Exec(ctx, `UPDATE offers SET stock_quantity = stock_quantity + $2, updated_at = now() WHERE id = $1`,
			it.OfferID, it.Quantity); err != nil {
			return nil, err
		}
	}

	if s := c.Shipment; s != nil {
		const ins = `
INSERT INTO shipments (order_id, order_item_id, seller_profile_id, tracking_number, shipping_carrier)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
		s.OrderID = o.ID
		if err := tx.QueryRow(ctx, ins, o.ID, s.OrderItemID, s.SellerProfileID, s.TrackingNumber, s.ShippingCarrier).
			Scan(&s.ID, &s.CreatedAt); err != nil {
			return nil, err
		}
		o.Shipments = append(o.Shipments, *s)
	}

	if c.CancellationReason != "" {
		o.CancellationReason = c.CancellationReason
	}
	if c.ReturnReason != "" {
		o.ReturnReason = c.ReturnReason
	}
	o.Status = orderstate.DeriveOrder(o)
	const upd = `
UPDATE orders
SET status = $2, cancellation_reason = $3, return_reason = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at`
	if err := tx.QueryRow(ctx, upd, o.ID, string(o.Status), o.CancellationReason, o.ReturnReason).Scan(&o.UpdatedAt); err != nil {
		return nil, err
	}

	return outboxrepo.InsertTx(ctx, tx, c.Tasks)
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
