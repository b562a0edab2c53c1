package offer

import (
	"context"

	"marketplace-orders/internal/domain"
)

// StockUpdate replaces the sellable fields of the offer identified by SKU.
type StockUpdate struct {
	SKU           string
	Price         int64
	MRP           int64
	StockQuantity int
	Status        string
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Offer, error)
	// GetMany returns the offers that exist among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]domain.Offer, error)
	UpdateBySKU(ctx context.Context, in StockUpdate) (*domain.Offer, error)
}
