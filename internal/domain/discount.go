package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// Discount is a coupon definition. Value is a percent for percentage coupons
// and an amount in minor units for flat coupons.
type Discount struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Type              DiscountType    `json:"discountType"`
	Value             decimal.Decimal `json:"value"`
	MinOrderAmount    *int64          `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount *int64          `json:"maxDiscountAmount,omitempty"`
	UsageLimit        *int            `json:"usageLimit,omitempty"`
	UsagePerUser      *int            `json:"usagePerUser,omitempty"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty"`
	IsActive          bool            `json:"isActive"`
}

// OrderDiscount records that a discount was consumed by an order.
type OrderDiscount struct {
	OrderID       string `json:"orderId"`
	DiscountID    string `json:"discountId"`
	Code          string `json:"code"`
	AppliedAmount int64  `json:"appliedAmount"`
}

var hundred = decimal.NewFromInt(100)

// Evaluate checks the discount against a subtotal and prior usage and returns
// the discount amount, clamped to [0, subtotal].
func (d *Discount) Evaluate(subtotal int64, totalUses, userUses int, now time.Time) (int64, error) {
	if !d.IsActive || (d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)) {
		return 0, NotFoundf("coupon %s not found or expired", d.Code)
	}
	if d.UsageLimit != nil && totalUses >= *d.UsageLimit {
		return 0, Conflictf("coupon %s has reached its usage limit", d.Code)
	}
	if d.UsagePerUser != nil && userUses >= *d.UsagePerUser {
		return 0, Conflictf("coupon %s already used the maximum number of times", d.Code)
	}
	if d.MinOrderAmount != nil && subtotal < *d.MinOrderAmount {
		return 0, Validationf("coupon %s requires a minimum order of %d", d.Code, *d.MinOrderAmount)
	}

	var amount int64
	switch d.Type {
	case DiscountPercentage:
		amount = decimal.NewFromInt(subtotal).Mul(d.Value).Div(hundred).Round(0).IntPart()
		if d.MaxDiscountAmount != nil && amount > *d.MaxDiscountAmount {
			amount = *d.MaxDiscountAmount
		}
	case DiscountFlat:
		flat := d.Value.Round(0).IntPart()
		if subtotal < flat {
			return 0, Validationf("coupon %s requires a minimum order of %d", d.Code, flat)
		}
		amount = flat
	default:
		return 0, Consistencyf("coupon %s has unknown type %q", d.Code, d.Type)
	}

	if amount < 0 {
		amount = 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount, nil
}
