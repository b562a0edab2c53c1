package offer

import (
	"context"
	"errors"
	"io"
	"log"

	"marketplace-orders/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const offerColumns = `
o.id, o.product_id, p.name, o.seller_profile_id, o.sku, o.price, o.mrp, o.currency,
o.stock_quantity, o.condition, o.status, o.updated_at`

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	err := row.Scan(&o.ID, &o.ProductID, &o.ProductName, &o.SellerProfileID, &o.SKU, &o.Price, &o.MRP, &o.Currency,
		&o.StockQuantity, &o.Condition, &o.Status, &o.UpdatedAt)
	return o, err
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Offer, error) {
	q := `SELECT ` + offerColumns + `
FROM offers o
JOIN products p ON p.id = o.product_id
WHERE o.id = $1`
	o, err := scanOffer(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Printf("offer repo: get id=%s not found", id)
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("offer repo: get id=%s error=%v", id, err)
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepo) GetMany(ctx context.Context, ids []string) (map[string]domain.Offer, error) {
	result := make(map[string]domain.Offer, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	q := `SELECT ` + offerColumns + `
FROM offers o
JOIN products p ON p.id = o.product_id
WHERE o.id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		r.logger.Printf("offer repo: get many count=%d error=%v", len(ids), err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("offer repo: get many rows error=%v", err)
		return nil, err
	}
	return result, nil
}

// UpdateBySKU takes the same row lock as a checkout debit, so imports and
// checkouts on one offer serialize.
func (r *postgresRepo) UpdateBySKU(ctx context.Context, in StockUpdate) (*domain.Offer, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM offers WHERE sku = $1 FOR UPDATE`, in.SKU).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Printf("offer repo: update sku=%s not found", in.SKU)
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	const upd = `
UPDATE offers
SET price = $2, mrp = $3, stock_quantity = $4, status = $5, updated_at = now()
WHERE id = $1`
	if _, err := tx.Exec(ctx, upd, id, in.Price, in.MRP, in.StockQuantity, in.Status); err != nil {
		r.logger.Printf("offer repo: update sku=%s error=%v", in.SKU, err)
		return nil, err
	}

	q := `SELECT ` + offerColumns + `
FROM offers o
JOIN products p ON p.id = o.product_id
WHERE o.id = $1`
	o, err := scanOffer(tx.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Printf("offer repo: updated sku=%s stock=%d status=%s", o.SKU, o.StockQuantity, o.Status)
	return &o, nil
}
