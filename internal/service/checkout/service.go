package checkout

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"marketplace-orders/internal/domain"
	orderrepo "marketplace-orders/internal/repository/order"

	"github.com/google/uuid"
)

type cartStore interface {
	Read(ctx context.Context, userID string) (*domain.EnrichedCart, error)
	Clear(ctx context.Context, userID string) error
}

type addressBook interface {
	GetAddress(ctx context.Context, customerID, addressID string) (*domain.Address, error)
}

type orderCreator interface {
	Create(ctx context.Context, in orderrepo.CreateInput) (*domain.Order, error)
}

type checkoutRecorder interface {
	Checkout(outcome string)
}

type Service struct {
	carts     cartStore
	addresses addressBook
	orders    orderCreator
	metrics   checkoutRecorder
	currency  string
	logger    *log.Logger
	now       func() time.Time
}

func New(carts cartStore, addresses addressBook, orders orderCreator, metrics checkoutRecorder, currency string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		carts:     carts,
		addresses: addresses,
		orders:    orders,
		metrics:   metrics,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder turns the user's cart into an order. Stock, prices and the
// coupon are re-checked inside the order transaction; the cart is cleared
// only after it commits.
func (s *Service) CreateOrder(ctx context.Context, userID, addressID string) (*domain.Order, error) {
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return nil, domain.Validationf("addressId is required")
	}

	cart, err := s.carts.Read(ctx, userID)
	if err != nil {
		s.record("error")
		return nil, err
	}
	if cart.Empty() {
		s.record("empty_cart")
		return nil, domain.Validationf("cart is empty")
	}

	addr, err := s.addresses.GetAddress(ctx, userID, addressID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.record("rejected")
			return nil, domain.NotFoundf("address %s not found", addressID)
		}
		s.record("error")
		return nil, err
	}

	in := orderrepo.CreateInput{
		OrderID:         NewOrderID(s.now()),
		UserID:          userID,
		Currency:        s.currency,
		ShippingAddress: *addr,
		Now:             s.now(),
	}
	for _, it := range cart.Items {
		in.Lines = append(in.Lines, orderrepo.CheckoutLine{
			OfferID:     it.OfferID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
		})
	}
	if cart.AppliedCoupon != nil {
		in.CouponCode = cart.AppliedCoupon.Code
	}

	o, err := s.orders.Create(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			s.record("conflict")
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
			s.record("rejected")
		default:
			s.record("error")
			s.logger.Printf("checkout: create order user_id=%s error=%v", userID, err)
		}
		return nil, err
	}
	s.record("created")
	s.logger.Printf("checkout: order created order_id=%s user_id=%s total=%d", o.ID, userID, o.TotalAmount)

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Printf("checkout: clear cart user_id=%s order_id=%s error=%v", userID, o.ID, err)
	}
	return o, nil
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Checkout(outcome)
	}
}

// NewOrderID returns a human-readable order number: the UTC creation second
// followed by a random suffix.
func NewOrderID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + strings.ToUpper(suffix)
}
