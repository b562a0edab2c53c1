package customer

import (
	"context"

	"marketplace-orders/internal/domain"
)

// Repository resolves customers and their saved addresses.
type Repository interface {
	// Ensure returns the id of the customer with email, creating it if needed.
	Ensure(ctx context.Context, email, name string) (string, error)
	AddAddress(ctx context.Context, customerID string, a domain.Address) (*domain.Address, error)
	// GetAddress returns ErrNotFound when the address does not exist or
	// belongs to another customer.
	GetAddress(ctx context.Context, customerID, addressID string) (*domain.Address, error)
}
