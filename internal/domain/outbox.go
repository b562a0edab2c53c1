package domain

import (
	"encoding/json"
	"time"
)

type TaskKind string

const (
	TaskRefund            TaskKind = "refund"
	TaskBuyerConfirmation TaskKind = "buyer_confirmation"
	TaskSellerFulfillment TaskKind = "seller_fulfillment"
	TaskItemStatus        TaskKind = "item_status"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// OutboxTask is a side effect recorded in the same transaction as the state
// change that caused it and executed later by the outbox workers.
type OutboxTask struct {
	ID            string          `json:"id"`
	Kind          TaskKind        `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Status        TaskStatus      `json:"status"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	LastError     string          `json:"lastError,omitempty"`
}

// RefundPayload asks the workers to refund Amount of a payment. A zero Amount
// refunds whatever is still refundable.
type RefundPayload struct {
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount,omitempty"`
	Reason  string `json:"reason"`
}

type BuyerConfirmationPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Total   int64  `json:"total"`
}

type SellerFulfillmentPayload struct {
	OrderID         string   `json:"orderId"`
	SellerProfileID string   `json:"sellerProfileId"`
	ItemIDs         []string `json:"itemIds"`
}

type ItemStatusPayload struct {
	OrderID        string      `json:"orderId"`
	UserID         string      `json:"userId"`
	OrderItemID    string      `json:"orderItemId"`
	Status         OrderStatus `json:"status"`
	TrackingNumber string      `json:"trackingNumber,omitempty"`
}

// NewTask builds a pending task of the given kind. The id is assigned by the
// outbox repository on insert when empty.
func NewTask(kind TaskKind, payload interface{}) (OutboxTask, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxTask{}, err
	}
	return OutboxTask{Kind: kind, Payload: raw, Status: TaskPending}, nil
}
