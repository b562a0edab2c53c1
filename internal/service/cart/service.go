package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"marketplace-orders/internal/domain"
	discountsvc "marketplace-orders/internal/service/discount"
)

const repairTimeout = 5 * time.Second

type cartRepo interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	AddCapped(ctx context.Context, userID, offerID string, delta, limit int) (int, bool, error)
	SetQuantity(ctx context.Context, userID, offerID string, qty int) error
	Remove(ctx context.Context, userID string, offerIDs ...string) error
	SetCoupon(ctx context.Context, userID, code string) error
	ClearCoupon(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
}

type offerRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Offer, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.Offer, error)
}

type couponEvaluator interface {
	ValidateAndCalculate(ctx context.Context, code string, subtotal int64, userID string) (*discountsvc.Result, error)
}

// Service is the cart store. The cache is never trusted for price or stock:
// every read re-validates entries against live offers.
type Service struct {
	repo      cartRepo
	offers    offerRepo
	discounts couponEvaluator
	currency  string
	logger    *log.Logger
	repairs   sync.WaitGroup
}

func New(repo cartRepo, offers offerRepo, discounts couponEvaluator, currency string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, offers: offers, discounts: discounts, currency: currency, logger: logger}
}

// AddItem adds qty to the entry for offerID. The resulting quantity may not
// exceed the offer's current stock.
func (s *Service) AddItem(ctx context.Context, userID, offerID string, qty int) (*domain.EnrichedCart, error) {
	if qty <= 0 {
		return nil, domain.Validationf("quantity must be positive")
	}
	offer, err := s.sellableOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	current, ok, err := s.repo.AddCapped(ctx, userID, offerID, qty, offer.StockQuantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Conflictf("only %d of %s in stock, %d already in cart", offer.StockQuantity, offer.ProductName, current)
	}
	return s.Read(ctx, userID)
}

// SetQuantity replaces the quantity for offerID; qty <= 0 removes the entry.
func (s *Service) SetQuantity(ctx context.Context, userID, offerID string, qty int) (*domain.EnrichedCart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, offerID)
	}
	offer, err := s.sellableOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if qty > offer.StockQuantity {
		return nil, domain.Conflictf("only %d of %s in stock", offer.StockQuantity, offer.ProductName)
	}
	if err := s.repo.SetQuantity(ctx, userID, offerID, qty); err != nil {
		return nil, err
	}
	return s.Read(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, offerID string) (*domain.EnrichedCart, error) {
	if err := s.repo.Remove(ctx, userID, offerID); err != nil {
		return nil, err
	}
	return s.Read(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.repo.Clear(ctx, userID)
}

// ApplyCoupon validates code against the current subtotal and attaches it.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*domain.EnrichedCart, error) {
	cart, err := s.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, domain.Validationf("cart is empty")
	}
	res, err := s.discounts.ValidateAndCalculate(ctx, code, cart.Subtotal, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetCoupon(ctx, userID, res.Code); err != nil {
		return nil, err
	}
	return s.Read(ctx, userID)
}

func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*domain.EnrichedCart, error) {
	if err := s.repo.ClearCoupon(ctx, userID); err != nil {
		return nil, err
	}
	return s.Read(ctx, userID)
}

// Read returns the cart priced against live offers. Dead entries are dropped,
// entries above stock are clamped with a warning and an invalid coupon is
// ignored; the matching cache repairs run in the background and never fail
// the read.
func (s *Service) Read(ctx context.Context, userID string) (*domain.EnrichedCart, error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(stored.Entries))
	for i, e := range stored.Entries {
		ids[i] = e.OfferID
	}
	offers, err := s.offers.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &domain.EnrichedCart{UserID: userID, Currency: s.currency, Items: []domain.EnrichedItem{}}
	var fix repair
	for _, e := range stored.Entries {
		offer, ok := offers[e.OfferID]
		if !ok || !offer.Sellable() {
			fix.drop = append(fix.drop, e.OfferID)
			continue
		}
		item := domain.EnrichedItem{
			OfferID:         offer.ID,
			ProductID:       offer.ProductID,
			ProductName:     offer.ProductName,
			SellerProfileID: offer.SellerProfileID,
			Condition:       offer.Condition,
			Price:           offer.Price,
			MRP:             offer.MRP,
			Quantity:        e.Quantity,
			AvailableStock:  offer.StockQuantity,
		}
		if e.Quantity > offer.StockQuantity {
			item.Quantity = offer.StockQuantity
			item.Warning = fmt.Sprintf("only %d in stock, quantity reduced from %d", offer.StockQuantity, e.Quantity)
			fix.clamp = append(fix.clamp, domain.CartEntry{OfferID: offer.ID, Quantity: offer.StockQuantity})
		}
		item.LineTotal = item.Price * int64(item.Quantity)
		out.Subtotal += item.LineTotal
		out.MRP += item.MRP * int64(item.Quantity)
		out.Items = append(out.Items, item)
	}

	if stored.AppliedCoupon != "" && len(out.Items) > 0 {
		res, err := s.discounts.ValidateAndCalculate(ctx, stored.AppliedCoupon, out.Subtotal, userID)
		switch {
		case err == nil:
			out.Discount = res.Amount
			out.AppliedCoupon = &domain.AppliedCoupon{Code: res.Code, DiscountID: res.DiscountID, Amount: res.Amount}
		case isCouponRejection(err):
			s.logger.Printf("cart: dropping coupon user_id=%s code=%s reason=%v", userID, stored.AppliedCoupon, err)
			fix.dropCoupon = true
		default:
			s.logger.Printf("cart: coupon check failed user_id=%s code=%s error=%v", userID, stored.AppliedCoupon, err)
		}
	}

	out.TotalAmount = out.Subtotal - out.Discount
	if out.TotalAmount < 0 {
		out.TotalAmount = 0
	}

	s.repair(ctx, userID, fix)
	return out, nil
}

// Drain waits for background cache repairs to finish.
func (s *Service) Drain() {
	s.repairs.Wait()
}

func (s *Service) sellableOffer(ctx context.Context, offerID string) (*domain.Offer, error) {
	offer, err := s.offers.GetByID(ctx, strings.TrimSpace(offerID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("offer %s not found", offerID)
		}
		return nil, err
	}
	if !offer.Sellable() {
		return nil, domain.Conflictf("%s is out of stock", offer.ProductName)
	}
	return offer, nil
}

type repair struct {
	drop       []string
	clamp      []domain.CartEntry
	dropCoupon bool
}

func (r repair) empty() bool {
	return len(r.drop) == 0 && len(r.clamp) == 0 && !r.dropCoupon
}

func (s *Service) repair(ctx context.Context, userID string, fix repair) {
	if fix.empty() {
		return
	}
	s.repairs.Add(1)
	go func() {
		defer s.repairs.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), repairTimeout)
		defer cancel()

		if len(fix.drop) > 0 {
			if err := s.repo.Remove(ctx, userID, fix.drop...); err != nil {
				s.logger.Printf("cart: repair drop user_id=%s offers=%v error=%v", userID, fix.drop, err)
			}
		}
		for _, e := range fix.clamp {
			if err := s.repo.SetQuantity(ctx, userID, e.OfferID, e.Quantity); err != nil {
				s.logger.Printf("cart: repair clamp user_id=%s offer_id=%s error=%v", userID, e.OfferID, err)
			}
		}
		if fix.dropCoupon {
			if err := s.repo.ClearCoupon(ctx, userID); err != nil {
				s.logger.Printf("cart: repair coupon user_id=%s error=%v", userID, err)
			}
		}
	}()
}

func isCouponRejection(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrValidation)
}
