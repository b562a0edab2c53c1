package seed

import (
	"context"
	"testing"

	"marketplace-orders/internal/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(ctx, t)

	first, err := Apply(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, Summary{CustomerID: first.CustomerID, Sellers: 2, Offers: 2, Coupon: "SAVE10"}, first)

	_, err = pool.Exec(ctx, `UPDATE offers SET stock_quantity = 0`)
	require.NoError(t, err)
	second, err := Apply(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, first.CustomerID, second.CustomerID)

	counts := map[string]int{}
	for _, table := range []string{"customers", "addresses", "seller_profiles", "products", "offers", "discounts"} {
		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&n))
		counts[table] = n
	}
	assert.Equal(t, map[string]int{
		"customers":       1,
		"addresses":       1,
		"seller_profiles": 2,
		"products":        1,
		"offers":          2,
		"discounts":       1,
	}, counts)

	var stock int
	require.NoError(t, pool.QueryRow(ctx, `SELECT stock_quantity FROM offers WHERE sku = 'SKU-KETTLE-ACME'`).Scan(&stock))
	assert.Equal(t, 25, stock, "stock is reset on every run")
}
