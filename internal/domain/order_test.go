package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProratedRefund(t *testing.T) {
	o := &Order{
		SubtotalAmount: 3000,
		DiscountAmount: 300,
		TotalAmount:    2700,
		Items: []OrderItem{
			{ID: "i1", PriceAtTimeOfPurchase: 1000, Quantity: 1},
			{ID: "i2", PriceAtTimeOfPurchase: 1000, Quantity: 2},
		},
	}
	assert.Equal(t, int64(900), ProratedRefund(o, []string{"i1"}))
	assert.Equal(t, int64(1800), ProratedRefund(o, []string{"i2"}))
	assert.Equal(t, int64(2700), ProratedRefund(o, []string{"i1", "i2"}))
	assert.Equal(t, int64(0), ProratedRefund(o, []string{"missing"}))

	assert.False(t, AllCancelledAfter(o, map[string]OrderStatus{"i1": OrderCancelled}))
	assert.True(t, AllCancelledAfter(o, map[string]OrderStatus{"i1": OrderCancelled, "i2": OrderCancelled}))
}

func TestCascadeAndRestock(t *testing.T) {
	o := &Order{Items: []OrderItem{
		{ID: "i1", Status: OrderPending},
		{ID: "i2", Status: OrderShipped},
		{ID: "i3", Status: OrderCancelled},
	}}
	change := CascadeItems(o, OrderCancelled)
	assert.Equal(t, map[string]OrderStatus{"i1": OrderCancelled, "i2": OrderCancelled}, change)
	assert.Equal(t, []string{"i1"}, RestockableOnCancel(o, change))
}
