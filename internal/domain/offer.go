package domain

import "time"

const (
	OfferActive   = "active"
	OfferInactive = "inactive"
)

// Offer is a seller's listing for a product. StockQuantity is the single
// authoritative inventory counter.
type Offer struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	SellerProfileID string    `json:"sellerProfileId"`
	SKU             string    `json:"sku"`
	Price           int64     `json:"price"`
	MRP             int64     `json:"mrp"`
	Currency        string    `json:"currency"`
	StockQuantity   int       `json:"stockQuantity"`
	Condition       string    `json:"condition"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (o Offer) Sellable() bool {
	return o.Status == OfferActive && o.StockQuantity > 0
}
