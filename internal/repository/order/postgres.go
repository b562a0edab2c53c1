package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sort"

	"marketplace-orders/internal/domain"
	discountrepo "marketplace-orders/internal/repository/discount"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	sink   TaskSink
	logger *log.Logger
}

// NewPostgres returns a Repository backed by Postgres. sink may be nil, in
// which case committed outbox tasks are only picked up by recovery polling.
func NewPostgres(pool *pgxpool.Pool, sink TaskSink, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, sink: sink, logger: logger}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *postgresRepo) Create(ctx context.Context, in CreateInput) (*domain.Order, error) {
	if len(in.Lines) == 0 {
		return nil, domain.Validationf("cart is empty")
	}
	addr, err := json.Marshal(in.ShippingAddress)
	if err != nil {
		return nil, err
	}

	// Offers are always locked in id order so concurrent checkouts cannot deadlock.
	lines := append([]CheckoutLine(nil), in.Lines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].OfferID < lines[j].OfferID })

	var created *domain.Order
	err = crdbpgx.ExecuteTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		o := &domain.Order{
			ID:              in.OrderID,
			UserID:          in.UserID,
			Currency:        in.Currency,
			ShippingAddress: in.ShippingAddress,
			Status:          domain.OrderPending,
		}

		var disc *domain.Discount
		if in.CouponCode != "" {
			d, err := discountrepo.Lookup(ctx, tx, in.CouponCode, true)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.NotFoundf("coupon %s not found", in.CouponCode)
				}
				return err
			}
			disc = d
		}

		const debit = `
UPDATE offers
SET stock_quantity = stock_quantity - $1, updated_at = now()
WHERE id = $2 AND status = 'active' AND stock_quantity >= $1
RETURNING price, mrp, seller_profile_id, (SELECT name FROM products p WHERE p.id = offers.product_id)`
		for _, l := range lines {
			it := domain.OrderItem{OfferID: l.OfferID, Quantity: l.Quantity, Status: domain.OrderPending}
			var mrp int64
			err := tx.QueryRow(ctx, debit, l.Quantity, l.OfferID).Scan(&it.PriceAtTimeOfPurchase, &mrp, &it.SellerProfileID, &it.ProductName)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					name := l.ProductName
					if name == "" {
						name = l.OfferID
					}
					return domain.Conflictf("insufficient stock for %s", name)
				}
				return err
			}
			o.SubtotalAmount += it.PriceAtTimeOfPurchase * int64(it.Quantity)
			o.MRP += mrp * int64(it.Quantity)
			o.Items = append(o.Items, it)
		}

		if disc != nil {
			usage, err := discountrepo.Count(ctx, tx, disc.ID, in.UserID)
			if err != nil {
				return err
			}
			amount, err := disc.Evaluate(o.SubtotalAmount, usage.Total, usage.ForUser, in.Now)
			if err != nil {
				return err
			}
			o.DiscountAmount = amount
			o.Discount = &domain.OrderDiscount{OrderID: o.ID, DiscountID: disc.ID, Code: disc.Code, AppliedAmount: amount}
		}
		o.TotalAmount = o.SubtotalAmount - o.DiscountAmount

		const insOrder = `
INSERT INTO orders (id, user_id, mrp, subtotal_amount, discount_amount, total_amount, currency, shipping_address, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
RETURNING created_at, updated_at`
		err := tx.QueryRow(ctx, insOrder, o.ID, o.UserID, o.MRP, o.SubtotalAmount, o.DiscountAmount, o.TotalAmount, o.Currency, addr).
			Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.Conflictf("order id %s already exists", o.ID)
			}
			return err
		}

		if o.Discount != nil {
			const insDiscount = `INSERT INTO order_discounts (order_id, discount_id, applied_amount) VALUES ($1, $2, $3)`
			if _, err := tx.Exec(ctx, insDiscount, o.ID, o.Discount.DiscountID, o.Discount.AppliedAmount); err != nil {
				return err
			}
		}

		const insItem = `
INSERT INTO order_items (order_id, offer_id, seller_profile_id, product_name, quantity, price_at_time_of_purchase, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
RETURNING id, updated_at`
		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			if err := tx.QueryRow(ctx, insItem, o.ID, it.OfferID, it.SellerProfileID, it.ProductName, it.Quantity, it.PriceAtTimeOfPurchase).
				Scan(&it.ID, &it.UpdatedAt); err != nil {
				return err
			}
		}

		created = o
		return nil
	})
	if err != nil {
		r.logger.Printf("order repo: create order_id=%s user_id=%s error=%v", in.OrderID, in.UserID, err)
		return nil, err
	}
	r.logger.Printf("order repo: created order_id=%s user_id=%s items=%d total=%d", created.ID, created.UserID, len(created.Items), created.TotalAmount)
	return created, nil
}

func (r *postgresRepo) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := loadOrder(ctx, r.pool, orderID, false)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("order repo: get order_id=%s error=%v", orderID, err)
		}
		return nil, err
	}
	return o, nil
}

func (r *postgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	q := `SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		r.logger.Printf("order repo: list user_id=%s error=%v", userID, err)
		return nil, err
	}
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		r.logger.Printf("order repo: list rows user_id=%s error=%v", userID, err)
		return nil, err
	}

	ptrs := make([]*domain.Order, len(result))
	for i := range result {
		ptrs[i] = &result[i]
	}
	if err := hydrate(ctx, r.pool, ptrs); err != nil {
		r.logger.Printf("order repo: hydrate user_id=%s error=%v", userID, err)
		return nil, err
	}
	r.logger.Printf("order repo: list user_id=%s count=%d", userID, len(result))
	return result, nil
}

func (r *postgresRepo) ItemOwner(ctx context.Context, itemID string) (string, string, error) {
	var orderID, sellerID string
	err := r.pool.QueryRow(ctx, `SELECT order_id, seller_profile_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID, &sellerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", domain.ErrNotFound
		}
		return "", "", err
	}
	return orderID, sellerID, nil
}
