package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository/order/ordertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(paid bool) *domain.Order {
	o := &domain.Order{
		ID:             "ORD-1",
		UserID:         "u1",
		SubtotalAmount: 3000,
		DiscountAmount: 300,
		TotalAmount:    2700,
		Status:         domain.OrderProcessing,
		Items: []domain.OrderItem{
			{ID: "i1", OfferID: "o1", SellerProfileID: "s1", PriceAtTimeOfPurchase: 1000, Quantity: 1, Status: domain.OrderProcessing},
			{ID: "i2", OfferID: "o2", SellerProfileID: "s2", PriceAtTimeOfPurchase: 1000, Quantity: 2, Status: domain.OrderProcessing},
		},
		Payment: &domain.Payment{ID: "pay-1", Amount: 2700, Status: domain.PaymentPending},
	}
	if paid {
		o.Payment.Status = domain.PaymentSucceeded
	}
	return o
}

func newService(o *domain.Order) (*Service, *ordertest.Memory) {
	orders := ordertest.New()
	orders.Put(o)
	return New(orders, nil), orders
}

func TestUpdateItemStatus_ShipAndDeliver(t *testing.T) {
	svc, orders := newService(order(true))
	ctx := context.Background()

	_, err := svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderShipped})
	assert.True(t, errors.Is(err, domain.ErrValidation), "shipping needs tracking")

	o, err := svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderShipped, TrackingNumber: "TRK1", ShippingCarrier: "BlueDart"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, o.Status, "one item still processing")
	require.Len(t, o.Shipments, 1)
	assert.Equal(t, "TRK1", o.Shipments[0].TrackingNumber)

	o, err = svc.UpdateItemStatus(ctx, "s2", "i2", ItemUpdate{Status: domain.OrderShipped, TrackingNumber: "TRK2", ShippingCarrier: "Delhivery"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, o.Status)

	_, err = svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderDelivered})
	require.NoError(t, err)
	o, err = svc.UpdateItemStatus(ctx, "s2", "i2", ItemUpdate{Status: domain.OrderDelivered})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDelivered, o.Status)

	kinds := orders.TaskKinds()
	assert.Len(t, kinds, 4)
	for _, k := range kinds {
		assert.Equal(t, domain.TaskItemStatus, k)
	}
}

func TestUpdateItemStatus_Ownership(t *testing.T) {
	svc, _ := newService(order(true))
	ctx := context.Background()

	_, err := svc.UpdateItemStatus(ctx, "s2", "i1", ItemUpdate{Status: domain.OrderCancelled})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.UpdateItemStatus(ctx, "s1", "missing", ItemUpdate{Status: domain.OrderCancelled})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateItemStatus_Rejections(t *testing.T) {
	ctx := context.Background()

	svc, _ := newService(order(false))
	_, err := svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderShipped, TrackingNumber: "T", ShippingCarrier: "C"})
	assert.True(t, errors.Is(err, domain.ErrValidation), "unpaid")

	_, err = svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderReturnRequested})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	svc, _ = newService(order(true))
	_, err = svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderDelivered})
	assert.True(t, errors.Is(err, domain.ErrValidation), "processing cannot skip shipped")
}

func TestUpdateItemStatus_CancelRestocksAndRefundsShare(t *testing.T) {
	svc, orders := newService(order(true))
	ctx := context.Background()

	o, err := svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, o.Status)
	assert.Equal(t, map[string]int{"o1": 1}, orders.Restocked)
	require.Equal(t, []domain.TaskKind{domain.TaskRefund, domain.TaskItemStatus}, orders.TaskKinds())

	var p domain.RefundPayload
	require.NoError(t, json.Unmarshal(orders.Tasks[0].Payload, &p))
	assert.Equal(t, int64(900), p.Amount)

	o, err = svc.UpdateItemStatus(ctx, "s2", "i2", ItemUpdate{Status: domain.OrderCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, o.Status)
	var last domain.RefundPayload
	require.NoError(t, json.Unmarshal(orders.Tasks[2].Payload, &last))
	assert.Zero(t, last.Amount, "last item refunds whatever is left")
}

func TestUpdateItemStatus_SameStatusIsNoop(t *testing.T) {
	svc, orders := newService(order(true))
	o, err := svc.UpdateItemStatus(context.Background(), "s1", "i1", ItemUpdate{Status: domain.OrderProcessing})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, o.Status)
	assert.Empty(t, orders.Tasks)
}

func TestUpdateItemStatus_SellerCannotCancelAfterShipping(t *testing.T) {
	ctx := context.Background()
	for _, from := range []domain.OrderStatus{domain.OrderShipped, domain.OrderDelivered, domain.OrderReturnRequested} {
		t.Run(string(from), func(t *testing.T) {
			o := order(true)
			for i := range o.Items {
				o.Items[i].Status = from
			}
			o.Status = from
			svc, orders := newService(o)

			_, err := svc.UpdateItemStatus(ctx, "s1", "i1", ItemUpdate{Status: domain.OrderCancelled})
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)

			got, err := orders.Get(ctx, "ORD-1")
			require.NoError(t, err)
			it, _ := got.Item("i1")
			assert.Equal(t, from, it.Status)
			assert.Empty(t, orders.Tasks)
			assert.Empty(t, orders.Restocked)
		})
	}
}
