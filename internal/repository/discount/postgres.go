package discount

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"marketplace-orders/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
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

// Querier is satisfied by both a pool and a transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectByCode = `
SELECT id, code, discount_type, value::text, min_order_amount, max_discount_amount,
       usage_limit, usage_per_user, expires_at, is_active
FROM discounts
WHERE code = $1`

// Lookup loads a discount by code, optionally locking its row.
func Lookup(ctx context.Context, q Querier, code string, forUpdate bool) (*domain.Discount, error) {
	sql := selectByCode
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var d domain.Discount
	var typ, value string
	err := q.QueryRow(ctx, sql, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&d.ID, &d.Code, &typ, &value, &d.MinOrderAmount, &d.MaxDiscountAmount,
		&d.UsageLimit, &d.UsagePerUser, &d.ExpiresAt, &d.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	d.Type = domain.DiscountType(typ)
	if d.Value, err = decimal.NewFromString(value); err != nil {
		return nil, err
	}
	return &d, nil
}

// Count returns global and per-user usage of a discount.
func Count(ctx context.Context, q Querier, discountID, userID string) (Usage, error) {
	const sql = `
SELECT count(*), count(*) FILTER (WHERE o.user_id = $2)
FROM order_discounts od
JOIN orders o ON o.id = od.order_id
WHERE od.discount_id = $1`
	var u Usage
	err := q.QueryRow(ctx, sql, discountID, userID).Scan(&u.Total, &u.ForUser)
	return u, err
}

func (r *postgresRepo) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	d, err := Lookup(ctx, r.pool, code, false)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("discount repo: get code=%s error=%v", code, err)
		}
		return nil, err
	}
	return d, nil
}

func (r *postgresRepo) CountUsage(ctx context.Context, discountID, userID string) (Usage, error) {
	u, err := Count(ctx, r.pool, discountID, userID)
	if err != nil {
		r.logger.Printf("discount repo: count usage discount_id=%s user_id=%s error=%v", discountID, userID, err)
	}
	return u, err
}
