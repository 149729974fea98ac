package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDiscountState is an in-memory DiscountState.
type stubDiscountState struct {
	applied *redisclient.AppliedDiscount
}

func (s *stubDiscountState) GetAppliedDiscount(ctx context.Context, ownerKey string) (*redisclient.AppliedDiscount, error) {
	return s.applied, nil
}

func (s *stubDiscountState) SetAppliedDiscount(ctx context.Context, ownerKey string, d *redisclient.AppliedDiscount, ttl time.Duration) error {
	s.applied = d
	return nil
}

func (s *stubDiscountState) ClearAppliedDiscount(ctx context.Context, ownerKey string) error {
	s.applied = nil
	return nil
}

func testCart(lines ...models.CartLine) *CartView {
	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].LineTotal())
	}
	return &CartView{Lines: lines, Subtotal: subtotal.Round(2)}
}

func validCoupon() *models.Coupon {
	return &models.Coupon{
		ID:     1,
		Code:   "SAVE10",
		Active: true,
		Kind:   models.DiscountKindPercentage,
		Value:  decimal.NewFromInt(10),
	}
}

func TestCouponValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	accountID := int64(7)

	cart := testCart(models.CartLine{ProductID: 1, Price: decimal.NewFromInt(50), Quantity: 1})

	tests := []struct {
		name       string
		mutate     func(c *models.Coupon)
		used       bool
		accountID  *int64
		wantReason string
	}{
		{
			name:   "valid",
			mutate: func(c *models.Coupon) {},
		},
		{
			name:       "inactive",
			mutate:     func(c *models.Coupon) { c.Active = false },
			wantReason: "coupon_inactive",
		},
		{
			name:       "not started",
			mutate:     func(c *models.Coupon) { c.StartsAt = &future },
			wantReason: "coupon_not_started",
		},
		{
			name:       "expired",
			mutate:     func(c *models.Coupon) { c.ExpiresAt = &past },
			wantReason: "coupon_expired",
		},
		{
			name:       "exhausted",
			mutate:     func(c *models.Coupon) { c.MaxUses = 5; c.UseCount = 5 },
			wantReason: "coupon_exhausted",
		},
		{
			name: "below minimum purchase",
			mutate: func(c *models.Coupon) {
				c.MinPurchase = decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true}
			},
			wantReason: "coupon_min_purchase",
		},
		{
			name:       "account required for guest",
			mutate:     func(c *models.Coupon) { c.RequiresAccount = true },
			wantReason: "coupon_account_required",
		},
		{
			name:      "account required satisfied",
			mutate:    func(c *models.Coupon) { c.RequiresAccount = true },
			accountID: &accountID,
		},
		{
			name:       "one per customer already used",
			mutate:     func(c *models.Coupon) { c.OnePerCustomer = true },
			used:       true,
			accountID:  &accountID,
			wantReason: "coupon_already_used",
		},
		{
			name: "scoped to absent product",
			mutate: func(c *models.Coupon) {
				other := int64(999)
				c.ScopeProductID = &other
			},
			wantReason: "coupon_out_of_scope",
		},
		{
			name: "scoped to present product",
			mutate: func(c *models.Coupon) {
				present := int64(1)
				c.ScopeProductID = &present
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := validCoupon()
			tt.mutate(coupon)

			d := &CouponDiscount{Coupon: coupon, usedByAccount: tt.used}
			err := d.Validate(cart, tt.accountID, now)

			if tt.wantReason == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, checkout.KindBusinessRule, err.Kind)
			assert.Equal(t, tt.wantReason, err.Reason)
		})
	}
}

func TestCouponComputeExcludesSaleLines(t *testing.T) {
	cart := testCart(
		models.CartLine{ProductID: 1, Price: decimal.NewFromInt(80), Quantity: 1},
		models.CartLine{
			ProductID: 2,
			Price:     decimal.NewFromInt(30),
			SalePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(20), Valid: true},
			Quantity:  1,
		},
	)
	require.Equal(t, "100.00", cart.Subtotal.StringFixed(2))

	d := &CouponDiscount{Coupon: validCoupon()}
	assert.Equal(t, "8.00", d.Compute(cart).StringFixed(2))
}

func TestCouponComputeFixedCappedAtBase(t *testing.T) {
	cart := testCart(models.CartLine{ProductID: 1, Price: decimal.NewFromInt(15), Quantity: 1})

	coupon := validCoupon()
	coupon.Kind = models.DiscountKindFixed
	coupon.Value = decimal.NewFromInt(25)

	d := &CouponDiscount{Coupon: coupon}
	assert.Equal(t, "15.00", d.Compute(cart).StringFixed(2))
}

func TestCouponComputeScopedBase(t *testing.T) {
	scopeProduct := int64(1)
	cart := testCart(
		models.CartLine{ProductID: 1, Price: decimal.NewFromInt(40), Quantity: 1},
		models.CartLine{ProductID: 2, Price: decimal.NewFromInt(60), Quantity: 1},
	)

	coupon := validCoupon()
	coupon.ScopeProductID = &scopeProduct

	d := &CouponDiscount{Coupon: coupon}
	assert.Equal(t, "4.00", d.Compute(cart).StringFixed(2))
}

func TestCouponComputeAllOnSale(t *testing.T) {
	cart := testCart(models.CartLine{
		ProductID: 1,
		Price:     decimal.NewFromInt(50),
		SalePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(40), Valid: true},
		Quantity:  1,
	})

	d := &CouponDiscount{Coupon: validCoupon()}
	assert.True(t, d.Compute(cart).IsZero())
}

func TestPopupValidate(t *testing.T) {
	now := time.Now()
	cart := testCart(models.CartLine{ProductID: 1, Price: decimal.NewFromInt(50), Quantity: 1})

	tests := []struct {
		name       string
		popup      models.PopupCoupon
		wantReason string
	}{
		{
			name:  "valid",
			popup: models.PopupCoupon{Code: "POP15", ExpiresAt: now.Add(time.Hour)},
		},
		{
			name:       "already used",
			popup:      models.PopupCoupon{Code: "POP15", Used: true, ExpiresAt: now.Add(time.Hour)},
			wantReason: "popup_used",
		},
		{
			name:       "expired",
			popup:      models.PopupCoupon{Code: "POP15", ExpiresAt: now.Add(-time.Hour)},
			wantReason: "popup_expired",
		},
		{
			name: "below minimum order",
			popup: models.PopupCoupon{
				Code:      "POP15",
				ExpiresAt: now.Add(time.Hour),
				MinOrder:  decimal.NewFromInt(100),
			},
			wantReason: "popup_min_order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &PopupDiscount{Popup: &tt.popup}
			err := d.Validate(cart, nil, now)

			if tt.wantReason == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantReason, err.Reason)
		})
	}
}

func TestPopupComputeAppliesToSubtotal(t *testing.T) {
	// Popup percentages apply to the whole subtotal, sale lines included.
	cart := testCart(
		models.CartLine{ProductID: 1, Price: decimal.NewFromInt(80), Quantity: 1},
		models.CartLine{
			ProductID: 2,
			Price:     decimal.NewFromInt(30),
			SalePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(20), Valid: true},
			Quantity:  1,
		},
	)

	d := &PopupDiscount{Popup: &models.PopupCoupon{
		Code:    "POP15",
		Percent: decimal.NewFromInt(15),
	}}
	assert.Equal(t, "15.00", d.Compute(cart).StringFixed(2))
}

var couponColumns = []string{
	"id", "code", "active", "kind", "value", "min_purchase", "starts_at",
	"expires_at", "max_uses", "use_count", "one_per_customer",
	"requires_account", "scope_product_id", "scope_category_id", "created_at",
}

var popupColumns = []string{
	"id", "code", "email", "percent", "min_order", "expires_at", "used", "created_at",
}

func TestApplyCrossKindExclusivity(t *testing.T) {
	owner := models.CartOwner{SessionID: "s1"}

	t.Run("popup while coupon active", func(t *testing.T) {
		st, mock := mockStore(t)
		state := &stubDiscountState{applied: &redisclient.AppliedDiscount{
			Kind: DiscountCoupon, Code: "SAVE10", Amount: "5.00",
		}}
		svc := NewDiscountService(st, state, NewCartService(st), time.Minute)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM coupons WHERE LOWER(code) = LOWER($1)")).
			WithArgs("POP15").
			WillReturnRows(sqlmock.NewRows(couponColumns))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM popup_coupons WHERE LOWER(code) = LOWER($1)")).
			WithArgs("POP15").
			WillReturnRows(sqlmock.NewRows(popupColumns).
				AddRow(1, "POP15", "buyer@example.com", "15", "0", time.Now().Add(time.Hour), false, time.Now()))

		_, err := svc.Apply(context.Background(), owner, "POP15")
		require.Error(t, err)
		assert.Equal(t, checkout.KindBusinessRule, checkout.KindOf(err))
		assert.Equal(t, checkout.ReasonCannotCombine, checkout.ReasonOf(err))
		// No cart query was expected: the rejection must run before Validate.
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("coupon while popup active", func(t *testing.T) {
		st, mock := mockStore(t)
		state := &stubDiscountState{applied: &redisclient.AppliedDiscount{
			Kind: DiscountPopup, Code: "POP15", Amount: "7.50",
		}}
		svc := NewDiscountService(st, state, NewCartService(st), time.Minute)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM coupons WHERE LOWER(code) = LOWER($1)")).
			WithArgs("SAVE10").
			WillReturnRows(sqlmock.NewRows(couponColumns).
				AddRow(1, "SAVE10", true, "percentage", "10", nil, nil, nil, 0, 0, false, false, nil, nil, time.Now()))

		_, err := svc.Apply(context.Background(), owner, "SAVE10")
		require.Error(t, err)
		assert.Equal(t, checkout.KindBusinessRule, checkout.KindOf(err))
		assert.Equal(t, checkout.ReasonCannotCombine, checkout.ReasonOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDiscountComputeIsIdempotent(t *testing.T) {
	cart := testCart(models.CartLine{ProductID: 1, Price: decimal.NewFromInt(100), Quantity: 1})

	d := &CouponDiscount{Coupon: validCoupon()}
	first := d.Compute(cart)
	second := d.Compute(cart)
	assert.True(t, first.Equal(second))
	assert.Equal(t, "100.00", cart.Subtotal.StringFixed(2), "compute must not mutate the cart")
}
