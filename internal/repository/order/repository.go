package order

import (
	"context"
	"time"

	"marketplace-orders/internal/domain"
)

// CheckoutLine is one cart entry being bought. Price and seller are read from
// the offer row while it is debited, not from the cart.
type CheckoutLine struct {
	OfferID     string
	ProductName string
	Quantity    int
}

type CreateInput struct {
	OrderID         string
	UserID          string
	Currency        string
	ShippingAddress domain.Address
	Lines           []CheckoutLine
	CouponCode      string
	Now             time.Time
}

// Mutation inspects a locked, fully loaded order and decides what to change.
// Returning a nil change leaves the order untouched.
type Mutation func(o *domain.Order) (*domain.OrderChange, error)

// PaymentMutation is like Mutation but for the order's payment. o.Payment is
// nil when no payment exists yet.
type PaymentMutation func(o *domain.Order) (*domain.PaymentChange, error)

type Repository interface {
	// Create runs checkout as one transaction: debits stock, consumes the
	// coupon and inserts the order with its items.
	Create(ctx context.Context, in CreateInput) (*domain.Order, error)
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	// ItemOwner resolves which order and seller an order item belongs to.
	ItemOwner(ctx context.Context, itemID string) (orderID, sellerProfileID string, err error)

	Update(ctx context.Context, orderID string, fn Mutation) (*domain.Order, error)
	UpdatePayment(ctx context.Context, orderID string, fn PaymentMutation) (*domain.Order, error)
	UpdatePaymentByTransaction(ctx context.Context, transactionID string, fn PaymentMutation) (*domain.Order, error)

	RederiveStatus(ctx context.Context, orderID string, derive func([]domain.OrderStatus) domain.OrderStatus) (stored, derived domain.OrderStatus, err error)
}

// TaskSink is told about outbox tasks once the transaction that wrote them
// has committed.
type TaskSink interface {
	Schedule(ctx context.Context, tasks []domain.OutboxTask)
}
