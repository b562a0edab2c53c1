package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) Gateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeGateway{api: api, webhookSecret: webhookSecret}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, in IntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return intentFrom(pi), nil
}

func (g *stripeGateway) UpdateIntent(ctx context.Context, transactionID string, in IntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	pi, err := g.api.PaymentIntents.Update(transactionID, params)
	if err != nil {
		return nil, err
	}
	return intentFrom(pi), nil
}

func (g *stripeGateway) Refund(ctx context.Context, in RefundInput) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.TransactionID),
		Amount:        stripe.Int64(in.Amount),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	rf, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	out := &Refund{ID: rf.ID, Amount: rf.Amount, Status: string(rf.Status)}
	if rf.LastResponse != nil {
		out.Raw = rf.LastResponse.RawJSON
	}
	return out, nil
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type), Raw: ev.Data.Raw}
	if ev.Type != EventPaymentSucceeded && ev.Type != EventPaymentFailed {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	out.TransactionID = pi.ID
	if pi.LastPaymentError != nil {
		out.FailureCode = string(pi.LastPaymentError.Code)
		out.FailureMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}

func intentFrom(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{TransactionID: pi.ID, ClientSecret: pi.ClientSecret}
	if pi.LastResponse != nil {
		in.Raw = pi.LastResponse.RawJSON
	}
	return in
}
