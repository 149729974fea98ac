package service

import (
	"context"
	"testing"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigitalQuote(t *testing.T) {
	quote := DigitalQuote()
	assert.Equal(t, models.DigitalDeliveryMethod, quote.MethodName)
	assert.True(t, quote.Cost.IsZero())
	assert.Nil(t, quote.MethodID)
}

func TestSettleOverrides(t *testing.T) {
	s := &ShippingService{}

	cart := testCart(
		models.CartLine{ProductID: 1, Price: decimal.NewFromInt(10), Quantity: 1, IsDigital: true},
		models.CartLine{ProductID: 2, Price: decimal.NewFromInt(20), Quantity: 1, ShipsFree: true},
		models.CartLine{ProductID: 3, Price: decimal.NewFromInt(30), Quantity: 1, ShipsFreeUS: true},
		models.CartLine{
			ProductID: 4, Price: decimal.NewFromInt(40), Quantity: 2,
			ShippingPrice: decimal.NullDecimal{Decimal: decimal.NewFromFloat(3.50), Valid: true},
		},
		models.CartLine{ProductID: 5, Price: decimal.NewFromInt(50), Quantity: 1},
	)

	cost, remaining := s.settleOverrides(cart, "US")
	assert.Equal(t, "7.00", cost.StringFixed(2))
	require.Len(t, remaining.Lines, 1)
	assert.Equal(t, int64(5), remaining.Lines[0].ProductID)
}

func TestResolveOverridesOnly(t *testing.T) {
	s := &ShippingService{}

	// Every physical line is override-covered, so no zone lookup runs and
	// the quote carries the standard sentinel with no method id.
	cart := testCart(
		models.CartLine{ProductID: 1, Price: decimal.NewFromInt(20), Quantity: 1, ShipsFree: true},
		models.CartLine{
			ProductID: 2, Price: decimal.NewFromInt(40), Quantity: 2,
			ShippingPrice: decimal.NullDecimal{Decimal: decimal.NewFromFloat(3.50), Valid: true},
		},
	)

	quote, err := s.Resolve(context.Background(), cart, "US", "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StandardDeliveryMethod, quote.MethodName)
	assert.Equal(t, "7.00", quote.Cost.StringFixed(2))
	assert.Nil(t, quote.MethodID)
}

func TestSettleOverridesUSOnlyAbroad(t *testing.T) {
	s := &ShippingService{}

	cart := testCart(
		models.CartLine{ProductID: 3, Price: decimal.NewFromInt(30), Quantity: 1, ShipsFreeUS: true},
	)

	// Domestic-only free shipping does not apply to other destinations.
	cost, remaining := s.settleOverrides(cart, "CA")
	assert.True(t, cost.IsZero())
	assert.Len(t, remaining.Lines, 1)
}

func TestMatchBandPriority(t *testing.T) {
	bands := []models.ShippingRateBand{
		{Basis: models.BandBasisSubtotal, Min: decimal.Zero, Rate: decimal.NewFromInt(9)},
		{Basis: models.BandBasisWeight, Min: decimal.Zero,
			Max:  decimal.NullDecimal{Decimal: decimal.NewFromInt(5), Valid: true},
			Rate: decimal.NewFromInt(4)},
	}

	// Weight bands win even when a subtotal band also matches.
	rate, ok := matchBand(bands, decimal.NewFromInt(2), decimal.NewFromInt(100), 3)
	require.True(t, ok)
	assert.Equal(t, "4.00", rate.StringFixed(2))
}

func TestMatchBandBounds(t *testing.T) {
	bands := []models.ShippingRateBand{
		{Basis: models.BandBasisWeight, Min: decimal.Zero,
			Max:  decimal.NullDecimal{Decimal: decimal.NewFromInt(5), Valid: true},
			Rate: decimal.NewFromInt(4)},
		{Basis: models.BandBasisWeight, Min: decimal.NewFromInt(5).Add(decimal.NewFromFloat(0.01)),
			Rate: decimal.NewFromInt(12)},
	}

	rate, ok := matchBand(bands, decimal.NewFromInt(5), decimal.Zero, 0)
	require.True(t, ok)
	assert.Equal(t, "4.00", rate.StringFixed(2), "max bound is inclusive")

	rate, ok = matchBand(bands, decimal.NewFromInt(20), decimal.Zero, 0)
	require.True(t, ok)
	assert.Equal(t, "12.00", rate.StringFixed(2), "open-ended band catches the rest")
}

func TestMatchBandFallsThroughBases(t *testing.T) {
	bands := []models.ShippingRateBand{
		{Basis: models.BandBasisQuantity, Min: decimal.NewFromInt(3), Rate: decimal.NewFromInt(6)},
	}

	rate, ok := matchBand(bands, decimal.NewFromInt(1), decimal.NewFromInt(50), 4)
	require.True(t, ok)
	assert.Equal(t, "6.00", rate.StringFixed(2))

	_, ok = matchBand(bands, decimal.NewFromInt(1), decimal.NewFromInt(50), 2)
	assert.False(t, ok, "quantity below the band minimum matches nothing")
}

func TestMethodRate(t *testing.T) {
	s := &ShippingService{}
	ctx := context.Background()

	cart := testCart(models.CartLine{ProductID: 1, Price: decimal.NewFromInt(60), Quantity: 1})

	free := &models.ShippingMethod{Kind: models.ShippingKindFree, FlatRate: decimal.NewFromInt(9)}
	rate, err := s.methodRate(ctx, free, cart, cart)
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	flat := &models.ShippingMethod{Kind: models.ShippingKindFlat, FlatRate: decimal.NewFromFloat(7.50)}
	rate, err = s.methodRate(ctx, flat, cart, cart)
	require.NoError(t, err)
	assert.Equal(t, "7.50", rate.StringFixed(2))

	// The free threshold is met by the full cart subtotal.
	flat.FreeThreshold = decimal.NullDecimal{Decimal: decimal.NewFromInt(50), Valid: true}
	rate, err = s.methodRate(ctx, flat, cart, cart)
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	// Live rates fall back to the flat rate.
	live := &models.ShippingMethod{Kind: models.ShippingKindLive, FlatRate: decimal.NewFromInt(11)}
	rate, err = s.methodRate(ctx, live, cart, cart)
	require.NoError(t, err)
	assert.Equal(t, "11.00", rate.StringFixed(2))
}

func TestMatchBandEmpty(t *testing.T) {
	_, ok := matchBand(nil, decimal.NewFromInt(1), decimal.NewFromInt(1), 1)
	assert.False(t, ok)
}
