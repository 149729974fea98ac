package service

import (
	"context"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Discount kind tags shared with snapshot/session state.
const (
	DiscountCoupon = "coupon"
	DiscountPopup  = "popup"
)

var oneHundred = decimal.NewFromInt(100)

// Discount is the capability both coupon kinds implement, so validation and
// computation cannot drift apart between them.
type Discount interface {
	Kind() string
	Code() string
	// Validate returns nil when the discount may be applied to the cart.
	Validate(cart *CartView, accountID *int64, now time.Time) *checkout.Error
	// Compute returns the discount amount for the cart, rounded to 2 decimals.
	Compute(cart *CartView) decimal.Decimal
}

// CouponDiscount is a persistent account-scoped coupon. usedByAccount is
// preloaded from the usage ledger before Validate runs, keeping Validate
// free of I/O.
type CouponDiscount struct {
	Coupon        *models.Coupon
	usedByAccount bool
}

func (d *CouponDiscount) Kind() string { return DiscountCoupon }
func (d *CouponDiscount) Code() string { return d.Coupon.Code }

// Validate short-circuits on the first failing rule.
func (d *CouponDiscount) Validate(cart *CartView, accountID *int64, now time.Time) *checkout.Error {
	c := d.Coupon
	if !c.Active {
		return checkout.BusinessRule("coupon_inactive", "coupon %q is not active", c.Code)
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return checkout.BusinessRule("coupon_not_started", "coupon %q is not valid yet", c.Code)
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return checkout.BusinessRule("coupon_expired", "coupon %q has expired", c.Code)
	}
	if c.MaxUses > 0 && c.UseCount >= c.MaxUses {
		return checkout.BusinessRule("coupon_exhausted", "coupon %q has reached its usage limit", c.Code)
	}
	if c.MinPurchase.Valid && cart.Subtotal.LessThan(c.MinPurchase.Decimal) {
		return checkout.BusinessRule("coupon_min_purchase",
			"coupon %q requires a minimum purchase of %s", c.Code, c.MinPurchase.Decimal.StringFixed(2))
	}
	if c.RequiresAccount && accountID == nil {
		return checkout.BusinessRule("coupon_account_required", "coupon %q requires an account", c.Code)
	}
	if c.OnePerCustomer && d.usedByAccount {
		return checkout.BusinessRule("coupon_already_used", "coupon %q was already used by this account", c.Code)
	}
	if c.Scoped() && !d.anyLineInScope(cart) {
		return checkout.BusinessRule("coupon_out_of_scope", "coupon %q does not apply to any cart item", c.Code)
	}
	return nil
}

func (d *CouponDiscount) anyLineInScope(cart *CartView) bool {
	for i := range cart.Lines {
		if d.lineInScope(&cart.Lines[i]) {
			return true
		}
	}
	return false
}

func (d *CouponDiscount) lineInScope(line *models.CartLine) bool {
	c := d.Coupon
	if c.ScopeProductID != nil && line.ProductID == *c.ScopeProductID {
		return true
	}
	if c.ScopeCategoryID != nil && line.CategoryID != nil && *line.CategoryID == *c.ScopeCategoryID {
		return true
	}
	return false
}

// Compute restricts the base to in-scope lines, excludes lines already on
// sale, then applies the percentage or fixed value against that base.
func (d *CouponDiscount) Compute(cart *CartView) decimal.Decimal {
	base := decimal.Zero
	for i := range cart.Lines {
		line := &cart.Lines[i]
		if d.Coupon.Scoped() && !d.lineInScope(line) {
			continue
		}
		if line.OnSale() {
			continue
		}
		base = base.Add(line.LineTotal())
	}

	var amount decimal.Decimal
	if d.Coupon.Kind == models.DiscountKindPercentage {
		amount = base.Mul(d.Coupon.Value).Div(oneHundred)
	} else {
		amount = decimal.Min(d.Coupon.Value, base)
	}
	return amount.Round(2)
}

// PopupDiscount is an anonymous single-use percentage code with its own
// code space.
type PopupDiscount struct {
	Popup *models.PopupCoupon
}

func (d *PopupDiscount) Kind() string { return DiscountPopup }
func (d *PopupDiscount) Code() string { return d.Popup.Code }

func (d *PopupDiscount) Validate(cart *CartView, accountID *int64, now time.Time) *checkout.Error {
	p := d.Popup
	if p.Used {
		return checkout.BusinessRule("popup_used", "code %q was already used", p.Code)
	}
	if now.After(p.ExpiresAt) {
		return checkout.BusinessRule("popup_expired", "code %q has expired", p.Code)
	}
	if cart.Subtotal.LessThan(p.MinOrder) {
		return checkout.BusinessRule("popup_min_order",
			"code %q requires a minimum order of %s", p.Code, p.MinOrder.StringFixed(2))
	}
	return nil
}

// Compute applies the percentage to the live cart subtotal.
func (d *PopupDiscount) Compute(cart *CartView) decimal.Decimal {
	return cart.Subtotal.Mul(d.Popup.Percent).Div(oneHundred).Round(2)
}

// DiscountState is the owner-scoped applied-discount storage. The redis
// client is the production implementation.
type DiscountState interface {
	GetAppliedDiscount(ctx context.Context, ownerKey string) (*redisclient.AppliedDiscount, error)
	SetAppliedDiscount(ctx context.Context, ownerKey string, d *redisclient.AppliedDiscount, ttl time.Duration) error
	ClearAppliedDiscount(ctx context.Context, ownerKey string) error
}

// DiscountService resolves codes, enforces cross-kind exclusivity, and
// keeps the owner-scoped applied state.
type DiscountService struct {
	store    *store.Store
	state    DiscountState
	cart     *CartService
	stateTTL time.Duration
	logger   *zap.Logger
}

// NewDiscountService creates a new discount service
func NewDiscountService(store *store.Store, state DiscountState, cart *CartService, stateTTL time.Duration) *DiscountService {
	return &DiscountService{
		store:    store,
		state:    state,
		cart:     cart,
		stateTTL: stateTTL,
		logger:   util.GetLogger(),
	}
}

// ApplyResult reports an accepted discount.
type ApplyResult struct {
	Kind     string          `json:"kind"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// resolveCode looks the code up in both code spaces; persistent coupons win
// ties because popup codes live in a separate table.
func (s *DiscountService) resolveCode(ctx context.Context, code string, accountID *int64) (Discount, error) {
	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon != nil {
		used := false
		if coupon.OnePerCustomer && accountID != nil {
			used, err = s.store.HasAccountUsedCoupon(ctx, coupon.ID, *accountID)
			if err != nil {
				return nil, err
			}
		}
		return &CouponDiscount{Coupon: coupon, usedByAccount: used}, nil
	}

	popup, err := s.store.GetPopupCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if popup != nil {
		return &PopupDiscount{Popup: popup}, nil
	}
	return nil, nil
}

// Apply validates a code against the owner's cart and records it as the
// applied discount. Cross-kind stacking is rejected before any other
// validation runs.
func (s *DiscountService) Apply(ctx context.Context, owner models.CartOwner, code string) (*ApplyResult, error) {
	ctx, span := util.StartSpan(ctx, "DiscountService.Apply")
	defer span.End()

	if code == "" {
		return nil, checkout.Validation("missing_code", "discount code is required")
	}

	discount, err := s.resolveCode(ctx, code, owner.AccountID)
	if err != nil {
		return nil, checkout.Internal("discount lookup failed", err)
	}
	if discount == nil {
		util.DiscountsRejectedTotal.WithLabelValues("unknown_code").Inc()
		return nil, checkout.BusinessRule("unknown_code", "unknown discount code %q", code)
	}

	state, err := s.state.GetAppliedDiscount(ctx, owner.Key())
	if err != nil {
		return nil, checkout.Internal("discount state lookup failed", err)
	}
	if state != nil && state.Kind != discount.Kind() {
		util.DiscountsRejectedTotal.WithLabelValues(checkout.ReasonCannotCombine).Inc()
		return nil, checkout.BusinessRule(checkout.ReasonCannotCombine,
			"cannot combine %q with the active discount", code)
	}

	cart, err := s.cart.Load(ctx, owner)
	if err != nil {
		return nil, checkout.Internal("cart load failed", err)
	}

	if verr := discount.Validate(cart, owner.AccountID, time.Now()); verr != nil {
		util.DiscountsRejectedTotal.WithLabelValues(verr.Reason).Inc()
		return nil, verr
	}

	amount := discount.Compute(cart)

	applied := &redisclient.AppliedDiscount{
		Kind:   discount.Kind(),
		Code:   discount.Code(),
		Amount: amount.StringFixed(2),
	}
	if err := s.state.SetAppliedDiscount(ctx, owner.Key(), applied, s.stateTTL); err != nil {
		return nil, checkout.Internal("failed to save discount state", err)
	}

	util.DiscountsAppliedTotal.WithLabelValues(discount.Kind()).Inc()
	s.logger.Info("Discount applied",
		zap.String("owner", owner.Key()),
		zap.String("code", discount.Code()),
		zap.String("kind", discount.Kind()),
		zap.String("amount", amount.StringFixed(2)))

	return &ApplyResult{Kind: discount.Kind(), Code: discount.Code(), Discount: amount}, nil
}

// Resolve re-validates the owner's applied discount against the current
// cart and returns the recomputed amount. No applied discount yields a zero
// amount and a nil Discount.
func (s *DiscountService) Resolve(ctx context.Context, owner models.CartOwner, cart *CartView) (Discount, decimal.Decimal, error) {
	state, err := s.state.GetAppliedDiscount(ctx, owner.Key())
	if err != nil {
		return nil, decimal.Zero, checkout.Internal("discount state lookup failed", err)
	}
	if state == nil {
		return nil, decimal.Zero, nil
	}

	discount, err := s.resolveCode(ctx, state.Code, owner.AccountID)
	if err != nil {
		return nil, decimal.Zero, checkout.Internal("discount lookup failed", err)
	}
	if discount == nil || discount.Kind() != state.Kind {
		_ = s.state.ClearAppliedDiscount(ctx, owner.Key())
		return nil, decimal.Zero, checkout.BusinessRule("coupon_revoked",
			"the applied discount %q is no longer available", state.Code)
	}

	if verr := discount.Validate(cart, owner.AccountID, time.Now()); verr != nil {
		_ = s.state.ClearAppliedDiscount(ctx, owner.Key())
		return nil, decimal.Zero, verr
	}

	return discount, discount.Compute(cart), nil
}

// Clear discards the owner's applied discount state.
func (s *DiscountService) Clear(ctx context.Context, owner models.CartOwner) error {
	return s.state.ClearAppliedDiscount(ctx, owner.Key())
}
