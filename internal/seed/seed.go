package seed

import (
	"context"
	"fmt"

	"marketplace-orders/internal/domain"
	customerrepo "marketplace-orders/internal/repository/customer"

	"github.com/jackc/pgx/v5/pgxpool"
)

type offerSeed struct {
	SKU    string
	Seller string
	Price  int64
	MRP    int64
	Stock  int
}

// Summary reports what Apply left in place.
type Summary struct {
	CustomerID string
	Sellers    int
	Offers     int
	Coupon     string
}

// Apply inserts a demo buyer, two sellers with kettle offers and the SAVE10
// coupon. It is idempotent via ON CONFLICT; stock is reset on every run.
func Apply(ctx context.Context, pool *pgxpool.Pool) (Summary, error) {
	var sum Summary
	customers := customerrepo.NewPostgres(pool, nil)
	customerID, err := customers.Ensure(ctx, "demo@example.com", "Demo Buyer")
	if err != nil {
		return sum, fmt.Errorf("ensure customer: %w", err)
	}
	sum.CustomerID = customerID
	if err := ensureAddress(ctx, pool, customers, customerID); err != nil {
		return sum, fmt.Errorf("ensure address: %w", err)
	}

	sellers := map[string]string{}
	for _, name := range []string{"Acme Kitchenware", "Budget Homes"} {
		id, err := upsertReturningID(ctx, pool, `
INSERT INTO seller_profiles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, name)
		if err != nil {
			return sum, fmt.Errorf("ensure seller %s: %w", name, err)
		}
		sellers[name] = id
		sum.Sellers++
	}

	productID, err := upsertReturningID(ctx, pool, `
INSERT INTO products (slug, name) VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, "steel-kettle", "Steel Kettle")
	if err != nil {
		return sum, fmt.Errorf("ensure product: %w", err)
	}

	offers := []offerSeed{
		{SKU: "SKU-KETTLE-ACME", Seller: "Acme Kitchenware", Price: 149900, MRP: 199900, Stock: 25},
		{SKU: "SKU-KETTLE-BUDGET", Seller: "Budget Homes", Price: 99900, MRP: 129900, Stock: 3},
	}
	for _, o := range offers {
		if err := upsertOffer(ctx, pool, productID, sellers[o.Seller], o); err != nil {
			return sum, fmt.Errorf("upsert offer %s: %w", o.SKU, err)
		}
		sum.Offers++
	}

	if err := upsertCoupon(ctx, pool); err != nil {
		return sum, err
	}
	sum.Coupon = "SAVE10"
	return sum, nil
}

// Addresses have no natural key, so one is added only when the customer has none.
func ensureAddress(ctx context.Context, pool *pgxpool.Pool, customers customerrepo.Repository, customerID string) error {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM addresses WHERE customer_id = $1)`, customerID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err := customers.AddAddress(ctx, customerID, domain.Address{
		FullName:   "Demo Buyer",
		Phone:      "+91 98450 00000",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
	})
	return err
}

func upsertOffer(ctx context.Context, pool *pgxpool.Pool, productID, sellerID string, o offerSeed) error {
	const q = `
INSERT INTO offers (product_id, seller_profile_id, sku, price, mrp, stock_quantity, status)
VALUES ($1, $2, $3, $4, $5, $6, 'active')
ON CONFLICT (sku) DO UPDATE
SET price = EXCLUDED.price,
    mrp = EXCLUDED.mrp,
    stock_quantity = EXCLUDED.stock_quantity,
    status = EXCLUDED.status,
    updated_at = now()
`
	_, err := pool.Exec(ctx, q, productID, sellerID, o.SKU, o.Price, o.MRP, o.Stock)
	return err
}

// SAVE10: 10% off orders of ₹500 or more, capped at ₹50.
func upsertCoupon(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
INSERT INTO discounts (code, discount_type, value, min_order_amount, max_discount_amount, is_active)
VALUES ('SAVE10', 'percentage', 10, 50000, 5000, TRUE)
ON CONFLICT (code) DO UPDATE
SET discount_type = EXCLUDED.discount_type,
    value = EXCLUDED.value,
    min_order_amount = EXCLUDED.min_order_amount,
    max_discount_amount = EXCLUDED.max_discount_amount,
    is_active = TRUE
`
	if _, err := pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("upsert coupon SAVE10: %w", err)
	}
	return nil
}

func upsertReturningID(ctx context.Context, pool *pgxpool.Pool, q string, args ...any) (string, error) {
	var id string
	if err := pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}
