package cart

import (
	"context"

	"marketplace-orders/internal/domain"
)

// Repository stores per-user carts. Carts are ephemeral: every mutation
// refreshes the TTL and a missing cart reads as empty.
type Repository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	// AddCapped adds delta to the entry and returns the new quantity. When the
	// result would exceed limit nothing is written and ok is false.
	AddCapped(ctx context.Context, userID, offerID string, delta, limit int) (qty int, ok bool, err error)
	SetQuantity(ctx context.Context, userID, offerID string, qty int) error
	Remove(ctx context.Context, userID string, offerIDs ...string) error
	SetCoupon(ctx context.Context, userID, code string) error
	ClearCoupon(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
}
