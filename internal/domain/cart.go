package domain

// Cart is the cache-resident, per-user basket. It is never authoritative for
// price or stock.
type Cart struct {
	UserID        string      `json:"userId"`
	Entries       []CartEntry `json:"entries"`
	AppliedCoupon string      `json:"appliedCoupon,omitempty"`
}

type CartEntry struct {
	OfferID  string `json:"offerId"`
	Quantity int    `json:"quantity"`
}

// EnrichedCart is a cart validated against live offers. Amounts are in minor
// currency units.
type EnrichedCart struct {
	UserID        string         `json:"userId"`
	Items         []EnrichedItem `json:"items"`
	MRP           int64          `json:"mrp"`
	Subtotal      int64          `json:"subtotal"`
	Discount      int64          `json:"discount"`
	TotalAmount   int64          `json:"totalAmount"`
	Currency      string         `json:"currency"`
	AppliedCoupon *AppliedCoupon `json:"appliedCoupon,omitempty"`
}

type EnrichedItem struct {
	OfferID         string `json:"offerId"`
	ProductID       string `json:"productId"`
	ProductName     string `json:"productName"`
	SellerProfileID string `json:"sellerProfileId"`
	Condition       string `json:"condition"`
	Price           int64  `json:"price"`
	MRP             int64  `json:"mrp"`
	Quantity        int    `json:"quantity"`
	LineTotal       int64  `json:"lineTotal"`
	AvailableStock  int    `json:"availableStock"`
	Warning         string `json:"warning,omitempty"`
}

type AppliedCoupon struct {
	Code       string `json:"code"`
	DiscountID string `json:"discountId"`
	Amount     int64  `json:"amount"`
}

func (c *EnrichedCart) Empty() bool {
	return c == nil || len(c.Items) == 0
}
