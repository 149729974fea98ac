package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is the server-held breakdown persisted when payment is
// reserved, keyed by the gateway reservation id. It is the single pricing
// authority at commit; commit never recomputes discount or shipping while
// a snapshot exists.
type PriceSnapshot struct {
	ReservationID    string          `json:"reservation_id"`
	OwnerKey         string          `json:"owner_key"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	ShippingMethodID *int64          `json:"shipping_method_id,omitempty"`
	ShippingMethod   string          `json:"shipping_method"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	CouponCode       *string         `json:"coupon_code,omitempty"`
	CouponKind       string          `json:"coupon_kind,omitempty"` // coupon | popup
	Total            decimal.Decimal `json:"total"`
	Free             bool            `json:"free"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AmountMinor is the gateway charge amount: round(total * 100) minor units.
func (s *PriceSnapshot) AmountMinor() int64 {
	return s.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Stale reports whether the snapshot is older than the allowed window.
func (s *PriceSnapshot) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}
