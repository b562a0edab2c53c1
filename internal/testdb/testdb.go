// Package testdb holds shared fixtures for integration tests that need a real
// Postgres or Redis. Tests are skipped when TEST_DB_DSN / TEST_REDIS_URL is unset.
package testdb

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/migrate"
)

// Pool connects to TEST_DB_DSN, applies migrations and truncates every table.
func Pool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	Reset(ctx, t, pool)
	return pool
}

func Reset(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
TRUNCATE outbox_tasks, shipments, payments, order_items, order_discounts, orders,
         discounts, offers, products, seller_profiles, addresses, customers CASCADE`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// Redis connects to TEST_REDIS_URL and flushes the selected database.
func Redis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

type Fixture struct {
	CustomerID string
	AddressID  string
	OtherID    string
	SellerA    string
	SellerB    string
	ProductID  string
}

// Seed inserts two customers, an address for the first, two sellers and a product.
func Seed(ctx context.Context, t *testing.T, pool *pgxpool.Pool) Fixture {
	t.Helper()
	var f Fixture
	steps := []struct {
		q    string
		args []interface{}
		dst  *string
	}{
		{`INSERT INTO customers (email, name) VALUES ('buyer@example.com', 'Buyer') RETURNING id`, nil, &f.CustomerID},
		{`INSERT INTO customers (email, name) VALUES ('other@example.com', 'Other') RETURNING id`, nil, &f.OtherID},
		{`INSERT INTO seller_profiles (name) VALUES ('Seller A') RETURNING id`, nil, &f.SellerA},
		{`INSERT INTO seller_profiles (name) VALUES ('Seller B') RETURNING id`, nil, &f.SellerB},
		{`INSERT INTO products (slug, name) VALUES ('kettle', 'Steel Kettle') RETURNING id`, nil, &f.ProductID},
	}
	for _, s := range steps {
		if err := pool.QueryRow(ctx, s.q, s.args...).Scan(s.dst); err != nil {
			t.Fatalf("seed %q: %v", s.q, err)
		}
	}
	err := pool.QueryRow(ctx, `
INSERT INTO addresses (customer_id, full_name, line1, city, postal_code)
VALUES ($1, 'Buyer', '1 MG Road', 'Bengaluru', '560001') RETURNING id`, f.CustomerID).Scan(&f.AddressID)
	if err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return f
}

func (f Fixture) Offer(ctx context.Context, t *testing.T, pool *pgxpool.Pool, seller, sku string, price int64, stock int) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
INSERT INTO offers (product_id, seller_profile_id, sku, price, mrp, stock_quantity)
VALUES ($1, $2, $3, $4, $4 + $4 / 5, $5) RETURNING id`, f.ProductID, seller, sku, price, stock).Scan(&id)
	if err != nil {
		t.Fatalf("seed offer %s: %v", sku, err)
	}
	return id
}

func Discount(ctx context.Context, t *testing.T, pool *pgxpool.Pool, d domain.Discount) string {
	t.Helper()
	var id string
	err := pool.QueryRow(ctx, `
INSERT INTO discounts (code, discount_type, value, min_order_amount, max_discount_amount, usage_limit, usage_per_user, expires_at, is_active)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9) RETURNING id`,
		d.Code, string(d.Type), d.Value.String(), d.MinOrderAmount, d.MaxDiscountAmount, d.UsageLimit, d.UsagePerUser, d.ExpiresAt, d.IsActive,
	).Scan(&id)
	if err != nil {
		t.Fatalf("seed discount %s: %v", d.Code, err)
	}
	return id
}

func Stock(ctx context.Context, t *testing.T, pool *pgxpool.Pool, offerID string) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(ctx, `SELECT stock_quantity FROM offers WHERE id = $1`, offerID).Scan(&n); err != nil {
		t.Fatalf("read stock %s: %v", offerID, err)
	}
	return n
}
