package order

import (
	"context"
	"encoding/json"
	"errors"

	"marketplace-orders/internal/domain"

	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `
id, user_id, mrp, subtotal_amount, discount_amount, total_amount, currency, shipping_address,
status, cancellation_reason, return_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var addr []byte
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.MRP, &o.SubtotalAmount, &o.DiscountAmount, &o.TotalAmount, &o.Currency, &addr,
		&status, &o.CancellationReason, &o.ReturnReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Status = domain.OrderStatus(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return o, err
		}
	}
	return o, nil
}

// loadOrder returns the order with items, payment, shipments and discount.
// With lock set the order row is locked for the rest of the transaction.
func loadOrder(ctx context.Context, q querier, orderID string, lock bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	orders := []*domain.Order{&o}
	if err := hydrate(ctx, q, orders); err != nil {
		return nil, err
	}
	return &o, nil
}

// hydrate fills items, payments, shipments and discounts for a batch of orders
// with one query per relation.
func hydrate(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	if err := loadItems(ctx, q, ids, byID); err != nil {
		return err
	}
	if err := loadPayments(ctx, q, ids, byID); err != nil {
		return err
	}
	if err := loadShipments(ctx, q, ids, byID); err != nil {
		return err
	}
	return loadDiscounts(ctx, q, ids, byID)
}

func loadItems(ctx context.Context, q querier, ids []string, byID map[string]*domain.Order) error {
	const sql = `
SELECT id, order_id, offer_id, seller_profile_id, product_name, quantity, price_at_time_of_purchase, status, updated_at
FROM order_items
WHERE order_id = ANY($1)
ORDER BY order_id, id`
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		var status string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.OfferID, &it.SellerProfileID, &it.ProductName, &it.Quantity,
			&it.PriceAtTimeOfPurchase, &status, &it.UpdatedAt); err != nil {
			return err
		}
		it.Status = domain.OrderStatus(status)
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func loadPayments(ctx context.Context, q querier, ids []string, byID map[string]*domain.Order) error {
	const sql = `
SELECT id, order_id, amount, currency, status, COALESCE(gateway_transaction_id, ''), client_secret,
       refund_amount, failure_code, failure_message, gateway_response, updated_at
FROM payments
WHERE order_id = ANY($1)`
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Payment
		var status string
		var resp []byte
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &status, &p.GatewayTransactionID, &p.ClientSecret,
			&p.RefundAmount, &p.FailureCode, &p.FailureMessage, &resp, &p.UpdatedAt); err != nil {
			return err
		}
		p.Status = domain.PaymentStatus(status)
		p.GatewayResponse = resp
		byID[p.OrderID].Payment = &p
	}
	return rows.Err()
}

func loadShipments(ctx context.Context, q querier, ids []string, byID map[string]*domain.Order) error {
	const sql = `
SELECT id, order_id, order_item_id, seller_profile_id, tracking_number, shipping_carrier, created_at
FROM shipments
WHERE order_id = ANY($1)
ORDER BY created_at`
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(&s.ID, &s.OrderID, &s.OrderItemID, &s.SellerProfileID, &s.TrackingNumber, &s.ShippingCarrier, &s.CreatedAt); err != nil {
			return err
		}
		o := byID[s.OrderID]
		o.Shipments = append(o.Shipments, s)
	}
	return rows.Err()
}

func loadDiscounts(ctx context.Context, q querier, ids []string, byID map[string]*domain.Order) error {
	const sql = `
SELECT od.order_id, od.discount_id, d.code, od.applied_amount
FROM order_discounts od
JOIN discounts d ON d.id = od.discount_id
WHERE od.order_id = ANY($1)`
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.OrderDiscount
		if err := rows.Scan(&d.OrderID, &d.DiscountID, &d.Code, &d.AppliedAmount); err != nil {
			return err
		}
		byID[d.OrderID].Discount = &d
	}
	return rows.Err()
}
