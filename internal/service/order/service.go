package order

import (
	"context"
	"errors"

	"marketplace-orders/internal/domain"
)

const listLimit = 50

type orderReader interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}

type Service struct {
	orders orderReader
}

func New(orders orderReader) *Service {
	return &Service{orders: orders}
}

// Get returns the order with items, payment and shipments. Orders of other
// users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("order %s not found", orderID)
		}
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.NotFoundf("order %s not found", orderID)
	}
	return o, nil
}

// List returns the user's most recent orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, userID, listLimit)
}
