package cart

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"marketplace-orders/internal/domain"
	discountsvc "marketplace-orders/internal/service/discount"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCart struct {
	mu      sync.Mutex
	entries map[string]int
	order   []string
	coupon  string
}

func newMemCart() *memCart {
	return &memCart{entries: map[string]int{}}
}

func (m *memCart) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &domain.Cart{UserID: userID, AppliedCoupon: m.coupon}
	for _, id := range m.order {
		if q, ok := m.entries[id]; ok {
			c.Entries = append(c.Entries, domain.CartEntry{OfferID: id, Quantity: q})
		}
	}
	return c, nil
}

func (m *memCart) AddCapped(_ context.Context, _, offerID string, delta, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.entries[offerID]
	if cur+delta > limit {
		return cur, false, nil
	}
	m.set(offerID, cur+delta)
	return cur + delta, true, nil
}

func (m *memCart) SetQuantity(_ context.Context, _, offerID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qty <= 0 {
		delete(m.entries, offerID)
		return nil
	}
	m.set(offerID, qty)
	return nil
}

func (m *memCart) set(offerID string, qty int) {
	if _, ok := m.entries[offerID]; !ok {
		m.order = append(m.order, offerID)
	}
	m.entries[offerID] = qty
}

func (m *memCart) Remove(_ context.Context, _ string, offerIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range offerIDs {
		delete(m.entries, id)
	}
	return nil
}

func (m *memCart) SetCoupon(_ context.Context, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupon = code
	return nil
}

func (m *memCart) ClearCoupon(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupon = ""
	return nil
}

func (m *memCart) Clear(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]int{}
	m.order = nil
	m.coupon = ""
	return nil
}

func (m *memCart) quantity(offerID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.entries[offerID]
	return q, ok
}

type stubOffers struct {
	offers map[string]domain.Offer
}

func (s *stubOffers) GetByID(_ context.Context, id string) (*domain.Offer, error) {
	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *stubOffers) GetMany(_ context.Context, ids []string) (map[string]domain.Offer, error) {
	out := make(map[string]domain.Offer, len(ids))
	for _, id := range ids {
		if o, ok := s.offers[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

type stubCoupons struct {
	amount   int64
	err      error
	subtotal int64
}

func (s *stubCoupons) ValidateAndCalculate(_ context.Context, code string, subtotal int64, _ string) (*discountsvc.Result, error) {
	s.subtotal = subtotal
	if s.err != nil {
		return nil, s.err
	}
	return &discountsvc.Result{DiscountID: "d1", Code: code, Amount: s.amount}, nil
}

func kettle(stock int) domain.Offer {
	return domain.Offer{
		ID:              "o1",
		ProductID:       "p1",
		ProductName:     "Steel Kettle",
		SellerProfileID: "s1",
		Price:           1000,
		MRP:             1200,
		StockQuantity:   stock,
		Status:          domain.OfferActive,
	}
}

func newService(offers map[string]domain.Offer, coupons *stubCoupons) (*Service, *memCart, *stubOffers) {
	repo := newMemCart()
	stub := &stubOffers{offers: offers}
	if coupons == nil {
		coupons = &stubCoupons{}
	}
	return New(repo, stub, coupons, "inr", nil), repo, stub
}

func TestAddItem_RejectsQuantityAboveStock(t *testing.T) {
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(3)}, nil)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, "u1", "o1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2000), cart.Subtotal)
	assert.Equal(t, int64(2400), cart.MRP)

	_, err = svc.AddItem(ctx, "u1", "o1", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	q, _ := repo.quantity("o1")
	assert.Equal(t, 2, q)
}

func TestAddItem_Validation(t *testing.T) {
	inactive := kettle(5)
	inactive.Status = domain.OfferInactive
	svc, _, _ := newService(map[string]domain.Offer{"o1": inactive}, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "o1", 0)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.AddItem(ctx, "u1", "missing", 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.AddItem(ctx, "u1", "o1", 1)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSetQuantity(t *testing.T) {
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(3)}, nil)
	ctx := context.Background()

	_, err := svc.SetQuantity(ctx, "u1", "o1", 5)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	cart, err := svc.SetQuantity(ctx, "u1", "o1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	cart, err = svc.SetQuantity(ctx, "u1", "o1", 0)
	require.NoError(t, err)
	assert.True(t, cart.Empty())
	_, ok := repo.quantity("o1")
	assert.False(t, ok)
}

func TestRead_ClampsToStockAndRepairsCache(t *testing.T) {
	svc, repo, offers := newService(map[string]domain.Offer{"o1": kettle(5)}, nil)
	ctx := context.Background()

	_, err := svc.SetQuantity(ctx, "u1", "o1", 5)
	require.NoError(t, err)

	offers.offers["o1"] = kettle(3)
	cart, err := svc.Read(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Contains(t, cart.Items[0].Warning, "only 3 in stock")
	assert.Equal(t, int64(3000), cart.Subtotal)

	svc.Drain()
	q, _ := repo.quantity("o1")
	assert.Equal(t, 3, q)
}

func TestRead_DropsDeadOffers(t *testing.T) {
	sold := kettle(0)
	sold.ID = "o2"
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(2), "o2": sold}, nil)
	ctx := context.Background()

	require.NoError(t, repo.SetQuantity(ctx, "u1", "o1", 1))
	require.NoError(t, repo.SetQuantity(ctx, "u1", "o2", 1))
	require.NoError(t, repo.SetQuantity(ctx, "u1", "gone", 1))

	cart, err := svc.Read(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "o1", cart.Items[0].OfferID)

	svc.Drain()
	_, ok := repo.quantity("o2")
	assert.False(t, ok)
	_, ok = repo.quantity("gone")
	assert.False(t, ok)
}

func TestApplyCoupon(t *testing.T) {
	coupons := &stubCoupons{amount: 300}
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(5)}, coupons)
	ctx := context.Background()

	_, err := svc.ApplyCoupon(ctx, "u1", "SAVE10")
	assert.True(t, errors.Is(err, domain.ErrValidation), "empty cart")

	_, err = svc.AddItem(ctx, "u1", "o1", 3)
	require.NoError(t, err)

	cart, err := svc.ApplyCoupon(ctx, "u1", "SAVE10")
	require.NoError(t, err)
	require.NotNil(t, cart.AppliedCoupon)
	assert.Equal(t, "SAVE10", cart.AppliedCoupon.Code)
	assert.Equal(t, int64(300), cart.Discount)
	assert.Equal(t, int64(2700), cart.TotalAmount)
	assert.Equal(t, int64(3000), coupons.subtotal)

	cart, err = svc.RemoveCoupon(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cart.AppliedCoupon)
	assert.Equal(t, int64(3000), cart.TotalAmount)
	assert.Empty(t, repo.coupon)
}

func TestRead_DropsRejectedCoupon(t *testing.T) {
	coupons := &stubCoupons{}
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(5)}, coupons)
	ctx := context.Background()

	require.NoError(t, repo.SetQuantity(ctx, "u1", "o1", 1))
	require.NoError(t, repo.SetCoupon(ctx, "u1", "BIGSPEND"))
	coupons.err = domain.Validationf("coupon BIGSPEND requires a minimum order of 5000")

	cart, err := svc.Read(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cart.AppliedCoupon)
	assert.Equal(t, int64(1000), cart.TotalAmount)

	svc.Drain()
	repo.mu.Lock()
	assert.Empty(t, repo.coupon)
	repo.mu.Unlock()
}

func TestRead_KeepsCouponOnTransientFailure(t *testing.T) {
	coupons := &stubCoupons{err: errors.New("connection reset")}
	svc, repo, _ := newService(map[string]domain.Offer{"o1": kettle(5)}, coupons)
	ctx := context.Background()

	require.NoError(t, repo.SetQuantity(ctx, "u1", "o1", 1))
	require.NoError(t, repo.SetCoupon(ctx, "u1", "SAVE10"))

	cart, err := svc.Read(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cart.AppliedCoupon)

	svc.Drain()
	repo.mu.Lock()
	assert.Equal(t, "SAVE10", repo.coupon)
	repo.mu.Unlock()
}

func TestRead_TotalsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total is subtotal minus discount and never negative", prop.ForAll(
		func(qtys []int, discount int64) bool {
			offers := map[string]domain.Offer{}
			repo := newMemCart()
			for i, q := range qtys {
				o := kettle(5)
				o.ID = string(rune('a' + i))
				o.Price = int64(100 * (i + 1))
				offers[o.ID] = o
				repo.set(o.ID, q)
			}
			repo.coupon = "ANY"
			svc := New(repo, &stubOffers{offers: offers}, &stubCoupons{amount: discount}, "inr", nil)

			cart, err := svc.Read(context.Background(), "u1")
			svc.Drain()
			if err != nil {
				return false
			}
			var subtotal int64
			for _, it := range cart.Items {
				if it.Quantity > it.AvailableStock || it.LineTotal != it.Price*int64(it.Quantity) {
					return false
				}
				subtotal += it.LineTotal
			}
			if cart.Subtotal != subtotal || cart.TotalAmount < 0 {
				return false
			}
			want := subtotal - cart.Discount
			if want < 0 {
				want = 0
			}
			return cart.TotalAmount == want
		},
		gen.SliceOfN(6, gen.IntRange(1, 9), reflect.TypeOf(int(0))),
		gen.Int64Range(0, 20000),
	))

	properties.TestingRun(t)
}
