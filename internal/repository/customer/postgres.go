package customer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"marketplace-orders/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Ensure(ctx context.Context, email, name string) (string, error) {
	const q = `
INSERT INTO customers (email, name)
VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`
	var id string
	if err := r.pool.QueryRow(ctx, q, strings.ToLower(email), name).Scan(&id); err != nil {
		r.logger.Printf("customer repo: ensure email=%s error=%v", email, err)
		return "", err
	}
	return id, nil
}

func (r *postgresRepo) AddAddress(ctx context.Context, customerID string, a domain.Address) (*domain.Address, error) {
	const q = `
INSERT INTO addresses (customer_id, full_name, phone, line1, line2, city, state, postal_code, country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'IN'))
RETURNING id, full_name, phone, line1, line2, city, state, postal_code, country
`
	return r.scanAddress(r.pool.QueryRow(ctx, q,
		customerID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country,
	))
}

func (r *postgresRepo) GetAddress(ctx context.Context, customerID, addressID string) (*domain.Address, error) {
	const q = `
SELECT id, full_name, phone, line1, line2, city, state, postal_code, country
FROM addresses
WHERE id = $1 AND customer_id = $2
`
	a, err := r.scanAddress(r.pool.QueryRow(ctx, q, addressID, customerID))
	if errors.Is(err, domain.ErrNotFound) {
		r.logger.Printf("customer repo: address customer_id=%s address_id=%s not found", customerID, addressID)
	}
	return a, err
}

func (r *postgresRepo) scanAddress(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	err := row.Scan(&a.ID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("customer repo: scan address error=%v", err)
		return nil, err
	}
	return &a, nil
}
