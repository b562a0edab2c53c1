package fulfillment

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"marketplace-orders/internal/domain"
	orderrepo "marketplace-orders/internal/repository/order"
)

type orderStore interface {
	ItemOwner(ctx context.Context, itemID string) (orderID, sellerProfileID string, err error)
	Update(ctx context.Context, orderID string, fn orderrepo.Mutation) (*domain.Order, error)
}

type Service struct {
	orders orderStore
	logger *log.Logger
}

func New(orders orderStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{orders: orders, logger: logger}
}

// sellerMoves narrows the shared item transitions to what a seller may do.
// Later cancellations come only from refunds and returns.
var sellerMoves = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderPending:    {domain.OrderProcessing, domain.OrderShipped, domain.OrderCancelled},
	domain.OrderProcessing: {domain.OrderShipped, domain.OrderCancelled},
	domain.OrderShipped:    {domain.OrderDelivered},
}

func sellerMayMove(from, to domain.OrderStatus) bool {
	for _, allowed := range sellerMoves[from] {
		if allowed == to {
			return from.CanTransitionTo(to)
		}
	}
	return false
}

type ItemUpdate struct {
	Status          domain.OrderStatus `json:"status" binding:"required"`
	TrackingNumber  string             `json:"trackingNumber"`
	ShippingCarrier string             `json:"shippingCarrier"`
}

// UpdateItemStatus moves one of the seller's order items forward. The order
// status is re-derived in the same transaction.
func (s *Service) UpdateItemStatus(ctx context.Context, sellerProfileID, itemID string, in ItemUpdate) (*domain.Order, error) {
	switch in.Status {
	case domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled:
	default:
		return nil, domain.Validationf("sellers cannot set status %q", in.Status)
	}
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.ShippingCarrier = strings.TrimSpace(in.ShippingCarrier)
	if in.Status == domain.OrderShipped && (in.TrackingNumber == "" || in.ShippingCarrier == "") {
		return nil, domain.Validationf("trackingNumber and shippingCarrier are required to ship")
	}

	orderID, owner, err := s.orders.ItemOwner(ctx, itemID)
	if err != nil || owner != sellerProfileID {
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("order item %s not found", itemID)
		}
		return nil, err
	}

	o, err := s.orders.Update(ctx, orderID, func(o *domain.Order) (*domain.OrderChange, error) {
		it, ok := o.Item(itemID)
		if !ok {
			return nil, domain.NotFoundf("order item %s not found", itemID)
		}
		if it.Status == in.Status {
			return nil, nil
		}
		if !sellerMayMove(it.Status, in.Status) {
			return nil, domain.Validationf("order item %s cannot move from %s to %s", itemID, it.Status, in.Status)
		}
		paid := o.Payment != nil && o.Payment.Status == domain.PaymentSucceeded
		if in.Status != domain.OrderCancelled && !paid {
			return nil, domain.Validationf("order %s is not paid", o.ID)
		}

		items := map[string]domain.OrderStatus{itemID: in.Status}
		change := &domain.OrderChange{Items: items}
		switch in.Status {
		case domain.OrderShipped:
			change.Shipment = &domain.Shipment{
				OrderItemID:     itemID,
				SellerProfileID: sellerProfileID,
				TrackingNumber:  in.TrackingNumber,
				ShippingCarrier: in.ShippingCarrier,
			}
		case domain.OrderCancelled:
			change.Restock = domain.RestockableOnCancel(o, items)
			if paid {
				refund := domain.RefundPayload{OrderID: o.ID, Reason: "item cancelled by seller"}
				if !domain.AllCancelledAfter(o, items) {
					refund.Amount = domain.ProratedRefund(o, []string{itemID})
				}
				task, err := domain.NewTask(domain.TaskRefund, refund)
				if err != nil {
					return nil, err
				}
				change.Tasks = append(change.Tasks, task)
			}
		}

		note, err := domain.NewTask(domain.TaskItemStatus, domain.ItemStatusPayload{
			OrderID:        o.ID,
			UserID:         o.UserID,
			OrderItemID:    itemID,
			Status:         in.Status,
			TrackingNumber: in.TrackingNumber,
		})
		if err != nil {
			return nil, err
		}
		change.Tasks = append(change.Tasks, note)
		return change, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("fulfillment: item updated order_id=%s item_id=%s seller_profile_id=%s status=%s", o.ID, itemID, sellerProfileID, in.Status)
	return o, nil
}
