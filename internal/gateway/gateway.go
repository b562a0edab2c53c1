// Package gateway talks to the external payment provider.
package gateway

import (
	"context"
	"encoding/json"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

type IntentInput struct {
	OrderID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type Intent struct {
	TransactionID string
	ClientSecret  string
	Raw           json.RawMessage
}

type RefundInput struct {
	TransactionID  string
	Amount         int64
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID     string
	Amount int64
	Status string
	Raw    json.RawMessage
}

// Event is a verified webhook event reduced to what reconciliation needs.
type Event struct {
	ID             string
	Type           string
	TransactionID  string
	FailureCode    string
	FailureMessage string
	Raw            json.RawMessage
}

type Gateway interface {
	CreateIntent(ctx context.Context, in IntentInput) (*Intent, error)
	UpdateIntent(ctx context.Context, transactionID string, in IntentInput) (*Intent, error)
	Refund(ctx context.Context, in RefundInput) (*Refund, error)
	// ParseWebhook verifies the signature and decodes the event. It fails
	// before anything in the payload is trusted.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
