// Package orderstate derives an order's status from the statuses of its items.
package orderstate

import "marketplace-orders/internal/domain"

// Derive returns the order status implied by the given item statuses, in
// precedence order:
//
//  1. every item cancelled: cancelled
//  2. every item delivered, return_requested or cancelled, at least one
//     return_requested: return_requested
//  3. every item delivered: delivered
//  4. every item shipped, delivered or cancelled: shipped
//  5. any item processing, shipped or delivered: processing
//  6. otherwise: pending
//
// A mix of delivered and cancelled items is therefore shipped.
//
// Derive is pure; an order with no items is pending.
func Derive(items []domain.OrderStatus) domain.OrderStatus {
	if len(items) == 0 {
		return domain.OrderPending
	}

	var c counts
	for _, s := range items {
		c.add(s)
	}
	n := len(items)

	switch {
	case c.cancelled == n:
		return domain.OrderCancelled
	case c.returned > 0 && c.returned+c.delivered+c.cancelled == n:
		return domain.OrderReturnRequested
	case c.delivered == n:
		return domain.OrderDelivered
	case c.shipped+c.delivered+c.cancelled == n:
		return domain.OrderShipped
	case c.processing+c.shipped+c.delivered > 0:
		return domain.OrderProcessing
	default:
		return domain.OrderPending
	}
}

// DeriveOrder is Derive over the items of a loaded order.
func DeriveOrder(o *domain.Order) domain.OrderStatus {
	return Derive(o.ItemStatuses())
}

type counts struct {
	pending, processing, shipped, delivered, cancelled, returned int
}

func (c *counts) add(s domain.OrderStatus) {
	switch s {
	case domain.OrderPending:
		c.pending++
	case domain.OrderProcessing:
		c.processing++
	case domain.OrderShipped:
		c.shipped++
	case domain.OrderDelivered:
		c.delivered++
	case domain.OrderCancelled:
		c.cancelled++
	case domain.OrderReturnRequested:
		c.returned++
	}
}
