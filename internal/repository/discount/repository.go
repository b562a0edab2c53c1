package discount

import (
	"context"

	"marketplace-orders/internal/domain"
)

// Usage counts order_discounts rows; there is no separate usage counter.
type Usage struct {
	Total   int
	ForUser int
}

type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Discount, error)
	CountUsage(ctx context.Context, discountID, userID string) (Usage, error)
}
