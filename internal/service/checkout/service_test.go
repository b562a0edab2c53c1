package checkout

import (
	"bytes"
	"context"
	"errors"
	"log"
	"regexp"
	"testing"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository/order/ordertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCarts struct {
	cart      *domain.EnrichedCart
	clearErr  error
	clearedBy string
}

func (s *stubCarts) Read(_ context.Context, userID string) (*domain.EnrichedCart, error) {
	if s.cart == nil {
		return &domain.EnrichedCart{UserID: userID}, nil
	}
	return s.cart, nil
}

func (s *stubCarts) Clear(_ context.Context, userID string) error {
	s.clearedBy = userID
	return s.clearErr
}

type stubAddresses struct {
	lastCustomer string
}

func (s *stubAddresses) GetAddress(_ context.Context, customerID, addressID string) (*domain.Address, error) {
	s.lastCustomer = customerID
	if addressID != "addr-1" || customerID != "u1" {
		return nil, domain.ErrNotFound
	}
	return &domain.Address{ID: addressID, City: "Pune"}, nil
}

type countingMetrics struct {
	outcomes []string
}

func (c *countingMetrics) Checkout(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func kettleCart() *domain.EnrichedCart {
	return &domain.EnrichedCart{
		UserID: "u1",
		Items: []domain.EnrichedItem{
			{OfferID: "o1", ProductName: "Steel Kettle", Price: 1000, Quantity: 2},
			{OfferID: "o2", ProductName: "Tea Cups", Price: 250, Quantity: 4},
		},
		AppliedCoupon: &domain.AppliedCoupon{Code: "SAVE10"},
	}
}

func TestCreateOrder(t *testing.T) {
	carts := &stubCarts{cart: kettleCart()}
	orders := ordertest.New()
	orders.Prices["o1"] = 1000
	orders.Prices["o2"] = 250
	metrics := &countingMetrics{}
	var logs bytes.Buffer
	svc := New(carts, &stubAddresses{}, orders, metrics, "inr", log.New(&logs, "", 0))
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC) }

	o, err := svc.CreateOrder(context.Background(), "u1", " addr-1 ")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260504103000-[0-9A-F]{8}$`), o.ID)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "SAVE10", orders.LastCreate.CouponCode)
	assert.Equal(t, "Pune", orders.LastCreate.ShippingAddress.City)
	assert.Equal(t, "inr", orders.LastCreate.Currency)
	assert.Equal(t, 4, orders.LastCreate.Lines[1].Quantity)
	assert.Equal(t, "u1", carts.clearedBy)
	assert.Equal(t, []string{"created"}, metrics.outcomes)
	assert.Contains(t, logs.String(), "checkout: order created order_id="+o.ID)
}

func TestCreateOrder_CartClearFailureIsSwallowed(t *testing.T) {
	carts := &stubCarts{cart: kettleCart(), clearErr: errors.New("redis down")}
	orders := ordertest.New()
	orders.Prices["o1"] = 1000
	orders.Prices["o2"] = 250
	var logs bytes.Buffer
	svc := New(carts, &stubAddresses{}, orders, nil, "inr", log.New(&logs, "", 0))

	o, err := svc.CreateOrder(context.Background(), "u1", "addr-1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Contains(t, logs.String(), "checkout: clear cart user_id=u1")
}

func TestCreateOrder_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		metrics := &countingMetrics{}
		svc := New(&stubCarts{}, &stubAddresses{}, ordertest.New(), metrics, "inr", nil)
		_, err := svc.CreateOrder(ctx, "u1", "addr-1")
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, []string{"empty_cart"}, metrics.outcomes)
	})

	t.Run("missing address id", func(t *testing.T) {
		svc := New(&stubCarts{cart: kettleCart()}, &stubAddresses{}, ordertest.New(), nil, "inr", nil)
		_, err := svc.CreateOrder(ctx, "u1", "  ")
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("foreign address", func(t *testing.T) {
		addresses := &stubAddresses{}
		svc := New(&stubCarts{cart: kettleCart()}, addresses, ordertest.New(), nil, "inr", nil)
		_, err := svc.CreateOrder(ctx, "u2", "addr-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Equal(t, "u2", addresses.lastCustomer)
	})

	t.Run("stock conflict keeps the cart", func(t *testing.T) {
		carts := &stubCarts{cart: kettleCart()}
		orders := ordertest.New()
		orders.CreateErr = domain.Conflictf("insufficient stock for Steel Kettle")
		metrics := &countingMetrics{}
		svc := New(carts, &stubAddresses{}, orders, metrics, "inr", nil)

		_, err := svc.CreateOrder(ctx, "u1", "addr-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.Equal(t, "insufficient stock for Steel Kettle", domain.PublicMessage(err))
		assert.Empty(t, carts.clearedBy)
		assert.Equal(t, []string{"conflict"}, metrics.outcomes)
	})
}

func TestNewOrderIDIsUnique(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewOrderID(now)
		require.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}
