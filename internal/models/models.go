package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CartOwner scopes cart, applied-discount, and snapshot state before checkout.
// Exactly one of SessionID or AccountID identifies the owner; AccountID wins
// when both are present.
type CartOwner struct {
	SessionID string
	AccountID *int64
}

// Key returns the storage key for owner-scoped state.
func (o CartOwner) Key() string {
	if o.AccountID != nil {
		return "acct:" + strconv.FormatInt(*o.AccountID, 10)
	}
	return "sess:" + o.SessionID
}

// Product carries the catalog fields the checkout core reads.
type Product struct {
	ID            int64               `db:"id" json:"id"`
	SKU           string              `db:"sku" json:"sku"`
	Name          string              `db:"name" json:"name"`
	CategoryID    *int64              `db:"category_id" json:"category_id,omitempty"`
	Price         decimal.Decimal     `db:"price" json:"price"`
	SalePrice     decimal.NullDecimal `db:"sale_price" json:"sale_price,omitempty"`
	Weight        decimal.Decimal     `db:"weight" json:"weight"`
	Stock         int                 `db:"stock" json:"stock"`
	IsDigital     bool                `db:"is_digital" json:"is_digital"`
	IsLicense     bool                `db:"is_license" json:"is_license"`
	EditionCode   string              `db:"edition_code" json:"edition_code,omitempty"`
	FileRef       string              `db:"file_ref" json:"file_ref,omitempty"`
	DownloadLimit int                 `db:"download_limit" json:"download_limit"`
	ShipsFree     bool                `db:"ships_free" json:"ships_free"`
	ShipsFreeUS   bool                `db:"ships_free_us" json:"ships_free_us"`
	ShippingPrice decimal.NullDecimal `db:"shipping_price" json:"shipping_price,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// ProductVariant adjusts price and carries its own stock row.
type ProductVariant struct {
	ID              int64               `db:"id" json:"id"`
	ProductID       int64               `db:"product_id" json:"product_id"`
	Name            string              `db:"name" json:"name"`
	SKU             string              `db:"sku" json:"sku"`
	PriceAdjustment decimal.NullDecimal `db:"price_adjustment" json:"price_adjustment,omitempty"`
	Stock           int                 `db:"stock" json:"stock"`
}

// CartLine is a cart row joined with the denormalized product/variant fields
// read at query time. One line per (owner, product, variant).
type CartLine struct {
	ID              int64               `db:"id" json:"id"`
	OwnerKey        string              `db:"owner_key" json:"-"`
	ProductID       int64               `db:"product_id" json:"product_id"`
	VariantID       *int64              `db:"variant_id" json:"variant_id,omitempty"`
	Quantity        int                 `db:"quantity" json:"quantity"`
	ProductName     string              `db:"product_name" json:"product_name"`
	SKU             string              `db:"sku" json:"sku"`
	CategoryID      *int64              `db:"category_id" json:"category_id,omitempty"`
	Price           decimal.Decimal     `db:"price" json:"price"`
	SalePrice       decimal.NullDecimal `db:"sale_price" json:"sale_price,omitempty"`
	PriceAdjustment decimal.NullDecimal `db:"price_adjustment" json:"price_adjustment,omitempty"`
	Stock           int                 `db:"stock" json:"stock"`
	Weight          decimal.Decimal     `db:"weight" json:"weight"`
	IsDigital       bool                `db:"is_digital" json:"is_digital"`
	IsLicense       bool                `db:"is_license" json:"is_license"`
	ShipsFree       bool                `db:"ships_free" json:"ships_free"`
	ShipsFreeUS     bool                `db:"ships_free_us" json:"ships_free_us"`
	ShippingPrice   decimal.NullDecimal `db:"shipping_price" json:"shipping_price,omitempty"`
}

// OnSale reports whether the line carries a sale price. Sale lines are
// excluded from coupon discount bases.
func (l *CartLine) OnSale() bool {
	return l.SalePrice.Valid
}

// UnitPrice is (sale_price ?? price) + coalesce(price_adjustment, 0).
func (l *CartLine) UnitPrice() decimal.Decimal {
	price := l.Price
	if l.SalePrice.Valid {
		price = l.SalePrice.Decimal
	}
	if l.PriceAdjustment.Valid {
		price = price.Add(l.PriceAdjustment.Decimal)
	}
	return price
}

// LineTotal is UnitPrice × Quantity.
func (l *CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Coupon is a persistent, account-scoped discount code.
type Coupon struct {
	ID              int64               `db:"id" json:"id"`
	Code            string              `db:"code" json:"code"`
	Active          bool                `db:"active" json:"active"`
	Kind            string              `db:"kind" json:"kind"` // percentage | fixed
	Value           decimal.Decimal     `db:"value" json:"value"`
	MinPurchase     decimal.NullDecimal `db:"min_purchase" json:"min_purchase,omitempty"`
	StartsAt        *time.Time          `db:"starts_at" json:"starts_at,omitempty"`
	ExpiresAt       *time.Time          `db:"expires_at" json:"expires_at,omitempty"`
	MaxUses         int                 `db:"max_uses" json:"max_uses"`
	UseCount        int                 `db:"use_count" json:"use_count"`
	OnePerCustomer  bool                `db:"one_per_customer" json:"one_per_customer"`
	RequiresAccount bool                `db:"requires_account" json:"requires_account"`
	ScopeProductID  *int64              `db:"scope_product_id" json:"scope_product_id,omitempty"`
	ScopeCategoryID *int64              `db:"scope_category_id" json:"scope_category_id,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// Scoped reports whether the coupon is limited to a product or category.
func (c *Coupon) Scoped() bool {
	return c.ScopeProductID != nil || c.ScopeCategoryID != nil
}

// CouponUsage is one row in the append-only usage ledger.
type CouponUsage struct {
	ID        int64     `db:"id" json:"id"`
	CouponID  int64     `db:"coupon_id" json:"coupon_id"`
	AccountID *int64    `db:"account_id" json:"account_id,omitempty"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	UsedAt    time.Time `db:"used_at" json:"used_at"`
}

// PopupCoupon is an anonymous, email-bound, time-boxed single-use code.
// Its code space is independent of persistent coupons.
type PopupCoupon struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Email     string          `db:"email" json:"email"`
	Percent   decimal.Decimal `db:"percent" json:"percent"`
	MinOrder  decimal.Decimal `db:"min_order" json:"min_order"`
	ExpiresAt time.Time       `db:"expires_at" json:"expires_at"`
	Used      bool            `db:"used" json:"used"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Coupon discount kinds
const (
	DiscountKindPercentage = "percentage"
	DiscountKindFixed      = "fixed"
)

// ShippingZone groups destination countries; the "*" country matches the
// rest of the world.
type ShippingZone struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// ShippingMethod is a rate rule within a zone.
type ShippingMethod struct {
	ID            int64               `db:"id" json:"id"`
	ZoneID        int64               `db:"zone_id" json:"zone_id"`
	Name          string              `db:"name" json:"name"`
	Kind          string              `db:"kind" json:"kind"` // free | flat | table | live
	FlatRate      decimal.Decimal     `db:"flat_rate" json:"flat_rate"`
	FreeThreshold decimal.NullDecimal `db:"free_threshold" json:"free_threshold,omitempty"`
	HandlingFee   decimal.Decimal     `db:"handling_fee" json:"handling_fee"`
}

// Shipping method kinds
const (
	ShippingKindFree  = "free"
	ShippingKindFlat  = "flat"
	ShippingKindTable = "table"
	ShippingKindLive  = "live"
)

// Sentinel shipping method names for carts that skip the zone rate lookup:
// digital-only carts, and physical carts whose every line carries a
// per-product override.
const (
	DigitalDeliveryMethod  = "Digital Delivery"
	StandardDeliveryMethod = "Standard"
)

// ShippingRateBand is one row of a table-rate lookup. Bands are matched by
// weight first, then subtotal, then quantity.
type ShippingRateBand struct {
	ID       int64               `db:"id" json:"id"`
	MethodID int64               `db:"method_id" json:"method_id"`
	Basis    string              `db:"basis" json:"basis"` // weight | subtotal | quantity
	Min      decimal.Decimal     `db:"min" json:"min"`
	Max      decimal.NullDecimal `db:"max" json:"max,omitempty"`
	Rate     decimal.Decimal     `db:"rate" json:"rate"`
}

// Band basis values, in lookup priority order.
const (
	BandBasisWeight   = "weight"
	BandBasisSubtotal = "subtotal"
	BandBasisQuantity = "quantity"
)

// Address is insert-only; billing and shipping get fresh rows per order.
type Address struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Line1      string `db:"line1" json:"line1"`
	Line2      string `db:"line2" json:"line2,omitempty"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state,omitempty"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	Country    string `db:"country" json:"country"`
	Phone      string `db:"phone" json:"phone,omitempty"`
}

// Order header. Totals are immutable once created; only Status and the
// tracking fields mutate afterwards.
type Order struct {
	ID                int64           `db:"id" json:"id"`
	OrderNumber       string          `db:"order_number" json:"order_number"`
	OwnerKey          string          `db:"owner_key" json:"-"`
	AccountID         *int64          `db:"account_id" json:"account_id,omitempty"`
	Email             string          `db:"email" json:"email"`
	Status            string          `db:"status" json:"status"`
	PaymentStatus     string          `db:"payment_status" json:"payment_status"`
	ReservationID     *string         `db:"reservation_id" json:"reservation_id,omitempty"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	ShippingCost      decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	ShippingMethod    string          `db:"shipping_method" json:"shipping_method"`
	Discount          decimal.Decimal `db:"discount" json:"discount"`
	CouponCode        *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	Total             decimal.Decimal `db:"total" json:"total"`
	BillingAddressID  int64           `db:"billing_address_id" json:"billing_address_id"`
	ShippingAddressID int64           `db:"shipping_address_id" json:"shipping_address_id"`
	TrackingNumber    string          `db:"tracking_number" json:"tracking_number,omitempty"`
	TrackingCarrier   string          `db:"tracking_carrier" json:"tracking_carrier,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items,omitempty"`
}

// Order statuses
const (
	OrderStatusPending           = "pending"
	OrderStatusProcessing        = "processing"
	OrderStatusShipped           = "shipped"
	OrderStatusDelivered         = "delivered"
	OrderStatusCancelled         = "cancelled"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusDisputed          = "disputed"
)

// Payment statuses
const (
	PaymentStatusPaid = "paid"
	PaymentStatusFree = "free"
)

// OrderItem is a frozen copy of a cart line at commit time; historical
// orders stay immutable even if catalog data changes later.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	VariantID *int64          `db:"variant_id" json:"variant_id,omitempty"`
	Name      string          `db:"name" json:"name"`
	SKU       string          `db:"sku" json:"sku"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	IsDigital bool            `db:"is_digital" json:"is_digital"`
	IsLicense bool            `db:"is_license" json:"is_license"`
}

// OrderStatusHistory is append-only; every transition adds a row.
type OrderStatusHistory struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderLicense is one issued key; unique per (order item, sequence) so
// retries are idempotent per key.
type OrderLicense struct {
	ID          int64     `db:"id" json:"id"`
	OrderItemID int64     `db:"order_item_id" json:"order_item_id"`
	Sequence    int       `db:"sequence" json:"sequence"`
	LicenseKey  string    `db:"license_key" json:"license_key"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// OrderDownload is a bounded download grant for a digital item.
type OrderDownload struct {
	ID          int64     `db:"id" json:"id"`
	OrderItemID int64     `db:"order_item_id" json:"order_item_id"`
	Token       string    `db:"token" json:"token"`
	FileRef     string    `db:"file_ref" json:"file_ref"`
	Remaining   int       `db:"remaining" json:"remaining"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent dedups webhook deliveries by gateway event id.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
