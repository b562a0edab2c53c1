package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/gateway"
	"marketplace-orders/internal/repository/order/ordertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	outcomes []string
}

func (e *eventLog) WebhookEvent(eventType, outcome string) {
	e.outcomes = append(e.outcomes, eventType+":"+outcome)
}

func twoSellerOrder() *domain.Order {
	return &domain.Order{
		ID:             "ORD-1",
		UserID:         "u1",
		SubtotalAmount: 3000,
		TotalAmount:    3000,
		Currency:       "inr",
		Status:         domain.OrderPending,
		Items: []domain.OrderItem{
			{ID: "i1", OfferID: "o1", SellerProfileID: "s2", PriceAtTimeOfPurchase: 1000, Quantity: 1, Status: domain.OrderPending},
			{ID: "i2", OfferID: "o2", SellerProfileID: "s1", PriceAtTimeOfPurchase: 1000, Quantity: 2, Status: domain.OrderPending},
		},
	}
}

// setup returns a service with ORD-1 awaiting payment and the id of its intent.
func setup(t *testing.T) (*Service, *ordertest.Memory, *gateway.Fake, *eventLog, string) {
	t.Helper()
	orders := ordertest.New()
	orders.Put(twoSellerOrder())
	gw := gateway.NewFake()
	events := &eventLog{}
	svc := New(orders, gw, events, nil)

	secret, err := svc.CreateOrUpdateIntent(context.Background(), "u1", "ORD-1")
	require.NoError(t, err)
	o, err := orders.Get(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, o.Payment)
	require.NotEmpty(t, secret)
	return svc, orders, gw, events, o.Payment.GatewayTransactionID
}

func TestCreateOrUpdateIntent_ReusesIntent(t *testing.T) {
	svc, orders, gw, _, _ := setup(t)
	ctx := context.Background()

	again, err := svc.CreateOrUpdateIntent(ctx, "u1", "ORD-1")
	require.NoError(t, err)
	assert.NotEmpty(t, again)
	assert.Len(t, gw.Intents, 1)

	o, err := orders.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, o.Payment.Status)
	assert.Equal(t, int64(3000), o.Payment.Amount)
	assert.Equal(t, "intent-ORD-1", gw.Intents[o.Payment.GatewayTransactionID].IdempotencyKey)
}

func TestCreateOrUpdateIntent_Rejections(t *testing.T) {
	ctx := context.Background()
	orders := ordertest.New()
	orders.Put(twoSellerOrder())
	gw := gateway.NewFake()
	svc := New(orders, gw, nil, nil)

	_, err := svc.CreateOrUpdateIntent(ctx, "intruder", "ORD-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.CreateOrUpdateIntent(ctx, "u1", "ORD-404")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	gw.FailNext = errors.New("stripe: timeout")
	_, err = svc.CreateOrUpdateIntent(ctx, "u1", "ORD-1")
	assert.True(t, errors.Is(err, domain.ErrGateway))
	o, _ := orders.Get(ctx, "ORD-1")
	assert.Nil(t, o.Payment, "failed gateway call must not leave a payment behind")

	orders.SetStatus("ORD-1", domain.OrderCancelled)
	_, err = svc.CreateOrUpdateIntent(ctx, "u1", "ORD-1")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestHandleWebhookEvent_SucceededIsIdempotent(t *testing.T) {
	svc, orders, _, events, txn := setup(t)
	ctx := context.Background()
	ev := &gateway.Event{ID: "evt_1", Type: gateway.EventPaymentSucceeded, TransactionID: txn}

	require.NoError(t, svc.HandleWebhookEvent(ctx, ev))
	first, err := orders.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSucceeded, first.Payment.Status)
	assert.Equal(t, domain.OrderProcessing, first.Status)
	for _, it := range first.Items {
		assert.Equal(t, domain.OrderProcessing, it.Status)
	}
	assert.Equal(t, []domain.TaskKind{
		domain.TaskBuyerConfirmation,
		domain.TaskSellerFulfillment,
		domain.TaskSellerFulfillment,
	}, orders.TaskKinds())

	require.NoError(t, svc.HandleWebhookEvent(ctx, ev))
	second, err := orders.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Payment.Status, second.Payment.Status)
	assert.Len(t, orders.TaskKinds(), 3)

	// A late failure for the same intent does not move a succeeded payment.
	require.NoError(t, svc.HandleWebhookEvent(ctx, &gateway.Event{ID: "evt_2", Type: gateway.EventPaymentFailed, TransactionID: txn}))
	third, _ := orders.Get(ctx, "ORD-1")
	assert.Equal(t, domain.PaymentSucceeded, third.Payment.Status)

	assert.Equal(t, []string{
		"payment_intent.succeeded:applied",
		"payment_intent.succeeded:duplicate",
		"payment_intent.payment_failed:duplicate",
	}, events.outcomes)
}

func TestHandleWebhookEvent_SellerNotificationsGroupedBySeller(t *testing.T) {
	svc, orders, _, _, txn := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleWebhookEvent(ctx, &gateway.Event{Type: gateway.EventPaymentSucceeded, TransactionID: txn}))

	orders.Tasks = orders.Tasks[1:]
	var sellers []string
	for _, task := range orders.Tasks {
		var p domain.SellerFulfillmentPayload
		require.NoError(t, json.Unmarshal(task.Payload, &p))
		sellers = append(sellers, p.SellerProfileID)
		assert.Len(t, p.ItemIDs, 1)
	}
	assert.Equal(t, []string{"s1", "s2"}, sellers)
}

func TestHandleWebhookEvent_Failed(t *testing.T) {
	svc, orders, _, _, txn := setup(t)
	ctx := context.Background()

	err := svc.HandleWebhookEvent(ctx, &gateway.Event{
		Type:           gateway.EventPaymentFailed,
		TransactionID:  txn,
		FailureCode:    "card_declined",
		FailureMessage: "Your card was declined.",
	})
	require.NoError(t, err)

	o, _ := orders.Get(ctx, "ORD-1")
	assert.Equal(t, domain.PaymentFailed, o.Payment.Status)
	assert.Equal(t, "card_declined", o.Payment.FailureCode)
	assert.Equal(t, domain.OrderPending, o.Status)

	// The buyer retries: the failed payment goes back to pending on the same intent.
	_, err = svc.CreateOrUpdateIntent(ctx, "u1", "ORD-1")
	require.NoError(t, err)
	o, _ = orders.Get(ctx, "ORD-1")
	assert.Equal(t, domain.PaymentPending, o.Payment.Status)
	assert.Empty(t, o.Payment.FailureCode)
}

func TestHandleWebhookEvent_SucceededAfterCancel(t *testing.T) {
	svc, orders, _, _, txn := setup(t)
	ctx := context.Background()

	_, err := orders.Update(ctx, "ORD-1", func(o *domain.Order) (*domain.OrderChange, error) {
		return &domain.OrderChange{Items: domain.CascadeItems(o, domain.OrderCancelled), CancellationReason: "changed my mind"}, nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhookEvent(ctx, &gateway.Event{Type: gateway.EventPaymentSucceeded, TransactionID: txn}))
	o, _ := orders.Get(ctx, "ORD-1")
	assert.Equal(t, domain.OrderCancelled, o.Status)
	assert.Equal(t, domain.PaymentSucceeded, o.Payment.Status)
	assert.Equal(t, []domain.TaskKind{domain.TaskRefund}, orders.TaskKinds())
}

func TestHandleWebhookEvent_UnknownAndIgnored(t *testing.T) {
	events := &eventLog{}
	svc := New(ordertest.New(), gateway.NewFake(), events, nil)
	ctx := context.Background()

	assert.NoError(t, svc.HandleWebhookEvent(ctx, &gateway.Event{Type: "charge.refunded"}))

	err := svc.HandleWebhookEvent(ctx, &gateway.Event{Type: gateway.EventPaymentSucceeded, TransactionID: "pi_missing"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Equal(t, []string{"charge.refunded:ignored", "payment_intent.succeeded:unknown_payment"}, events.outcomes)
}
