package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the durable result of a checkout. Status is derived from Items.
type Order struct {
	ID                 string         `json:"orderId"`
	UserID             string         `json:"userId"`
	MRP                int64          `json:"mrp"`
	SubtotalAmount     int64          `json:"subtotalAmount"`
	DiscountAmount     int64          `json:"discountAmount"`
	TotalAmount        int64          `json:"totalAmount"`
	Currency           string         `json:"currency"`
	ShippingAddress    Address        `json:"shippingAddress"`
	Status             OrderStatus    `json:"status"`
	CancellationReason string         `json:"cancellationReason,omitempty"`
	ReturnReason       string         `json:"returnReason,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Items              []OrderItem    `json:"items"`
	Discount           *OrderDiscount `json:"discount,omitempty"`
	Payment            *Payment       `json:"payment,omitempty"`
	Shipments          []Shipment     `json:"shipments,omitempty"`
}

type OrderItem struct {
	ID                    string      `json:"id"`
	OrderID               string      `json:"orderId"`
	OfferID               string      `json:"offerId"`
	SellerProfileID       string      `json:"sellerProfileId"`
	ProductName           string      `json:"productName"`
	Quantity              int         `json:"quantity"`
	PriceAtTimeOfPurchase int64       `json:"priceAtTimeOfPurchase"`
	Status                OrderStatus `json:"status"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}

func (o *Order) ItemStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, it.Status)
	}
	return out
}

func (o *Order) Item(id string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return OrderItem{}, false
}

// ItemsBySeller groups order items by seller profile, preserving item order.
func (o *Order) ItemsBySeller() map[string][]OrderItem {
	out := make(map[string][]OrderItem)
	for _, it := range o.Items {
		out[it.SellerProfileID] = append(out[it.SellerProfileID], it)
	}
	return out
}

// Payment is one-to-one with an order.
type Payment struct {
	ID                   string          `json:"id"`
	OrderID              string          `json:"orderId"`
	Amount               int64           `json:"amount"`
	Currency             string          `json:"currency"`
	Status               PaymentStatus   `json:"status"`
	GatewayTransactionID string          `json:"gatewayTransactionId,omitempty"`
	ClientSecret         string          `json:"-"`
	RefundAmount         int64           `json:"refundAmount"`
	FailureCode          string          `json:"failureCode,omitempty"`
	FailureMessage       string          `json:"failureMessage,omitempty"`
	GatewayResponse      json.RawMessage `json:"-"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

func (p *Payment) Refundable() int64 {
	return p.Amount - p.RefundAmount
}

type Shipment struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	OrderItemID     string    `json:"orderItemId"`
	SellerProfileID string    `json:"sellerProfileId"`
	TrackingNumber  string    `json:"trackingNumber"`
	ShippingCarrier string    `json:"shippingCarrier"`
	CreatedAt       time.Time `json:"createdAt"`
}

// OrderChange is what a business rule decides to do with a locked order.
// Order status is never part of it: it is re-derived from item statuses.
type OrderChange struct {
	Items              map[string]OrderStatus
	CancellationReason string
	ReturnReason       string
	Restock            []string
	Shipment           *Shipment
	Tasks              []OutboxTask
}

// CascadeItems moves every item that is not already at status to status.
func CascadeItems(o *Order, status OrderStatus) map[string]OrderStatus {
	out := make(map[string]OrderStatus, len(o.Items))
	for _, it := range o.Items {
		if it.Status != status {
			out[it.ID] = status
		}
	}
	return out
}

// RestockableOnCancel lists items whose stock goes back to the offer when they
// are cancelled: only items that never left the seller.
func RestockableOnCancel(o *Order, change map[string]OrderStatus) []string {
	var out []string
	for _, it := range o.Items {
		next, ok := change[it.ID]
		if !ok || next != OrderCancelled {
			continue
		}
		if it.Status == OrderPending || it.Status == OrderProcessing {
			out = append(out, it.ID)
		}
	}
	return out
}

// PaymentChange is applied to a locked payment together with an optional
// change of its order.
type PaymentChange struct {
	Status               PaymentStatus
	GatewayTransactionID string
	ClientSecret         string
	RefundDelta          int64
	FailureCode          string
	FailureMessage       string
	GatewayResponse      json.RawMessage
	Order                *OrderChange
	Tasks                []OutboxTask
}

// ProratedRefund is the share of the paid total attributable to itemIDs once
// any order discount is spread across all items in proportion to value.
func ProratedRefund(o *Order, itemIDs []string) int64 {
	if o.SubtotalAmount <= 0 {
		return 0
	}
	var value int64
	for _, id := range itemIDs {
		if it, ok := o.Item(id); ok {
			value += it.PriceAtTimeOfPurchase * int64(it.Quantity)
		}
	}
	amount := decimal.NewFromInt(value).
		Mul(decimal.NewFromInt(o.TotalAmount)).
		Div(decimal.NewFromInt(o.SubtotalAmount)).
		Round(0).
		IntPart()
	if amount > o.TotalAmount {
		return o.TotalAmount
	}
	return amount
}

// AllCancelledAfter reports whether every item is cancelled once change is
// applied.
func AllCancelledAfter(o *Order, change map[string]OrderStatus) bool {
	for _, it := range o.Items {
		st := it.Status
		if next, ok := change[it.ID]; ok {
			st = next
		}
		if st != OrderCancelled {
			return false
		}
	}
	return len(o.Items) > 0
}
