package service

import (
	"context"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ShippingQuote is a resolved shipping selection.
type ShippingQuote struct {
	MethodID   *int64          `json:"method_id,omitempty"`
	MethodName string          `json:"method_name"`
	Cost       decimal.Decimal `json:"cost"`
}

// ShippingService maps a destination and cart to a shipping cost.
type ShippingService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewShippingService creates a new shipping service
func NewShippingService(store *store.Store) *ShippingService {
	return &ShippingService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// DigitalQuote is the fixed quote for digital-only carts; the resolver is
// not consulted for them.
func DigitalQuote() *ShippingQuote {
	return &ShippingQuote{MethodName: models.DigitalDeliveryMethod, Cost: decimal.Zero}
}

// Resolve computes the shipping cost for a physical cart. Per-product
// overrides are settled first and take precedence for their lines; the
// remaining lines go through the zone/method rate lookup. methodID selects
// a specific method within the resolved zone; nil picks the zone's first.
// A nil quote means no method could be resolved.
func (s *ShippingService) Resolve(ctx context.Context, cart *CartView, country, state string, methodID *int64) (*ShippingQuote, error) {
	ctx, span := util.StartSpan(ctx, "ShippingService.Resolve")
	defer span.End()

	overrideCost, remaining := s.settleOverrides(cart, country)

	if len(remaining.Lines) == 0 {
		// Every physical line was covered by an override.
		return &ShippingQuote{MethodName: models.StandardDeliveryMethod, Cost: overrideCost.Round(2)}, nil
	}

	zone, err := s.store.GetZoneByCountry(ctx, country)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, nil
	}

	method, err := s.pickMethod(ctx, zone.ID, methodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, nil
	}

	rate, err := s.methodRate(ctx, method, cart, remaining)
	if err != nil {
		return nil, err
	}

	if rate.IsPositive() {
		rate = rate.Add(method.HandlingFee)
	}

	return &ShippingQuote{
		MethodID:   &method.ID,
		MethodName: method.Name,
		Cost:       rate.Add(overrideCost).Round(2),
	}, nil
}

// settleOverrides splits off lines with per-product shipping overrides and
// returns their fixed cost plus the view of lines still needing a rate.
func (s *ShippingService) settleOverrides(cart *CartView, country string) (decimal.Decimal, *CartView) {
	cost := decimal.Zero
	remaining := &CartView{Subtotal: cart.Subtotal}

	for i := range cart.Lines {
		line := &cart.Lines[i]
		switch {
		case line.IsDigital:
			// Digital lines never ship.
		case line.ShipsFree:
			// Ships free everywhere.
		case line.ShipsFreeUS && country == "US":
			// Ships free domestically only.
		case line.ShippingPrice.Valid:
			qty := decimal.NewFromInt(int64(line.Quantity))
			cost = cost.Add(line.ShippingPrice.Decimal.Mul(qty))
		default:
			remaining.Lines = append(remaining.Lines, *line)
		}
	}

	return cost, remaining
}

func (s *ShippingService) pickMethod(ctx context.Context, zoneID int64, methodID *int64) (*models.ShippingMethod, error) {
	if methodID != nil {
		method, err := s.store.GetMethodByID(ctx, *methodID)
		if err != nil {
			return nil, err
		}
		if method.ZoneID != zoneID {
			return nil, checkout.BusinessRule(checkout.ReasonNoShippingMethod,
				"shipping method %d does not serve the destination", *methodID)
		}
		return method, nil
	}

	methods, err := s.store.GetMethodsByZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, nil
	}
	return &methods[0], nil
}

// methodRate applies the method's kind. The free-shipping threshold is
// checked against the full cart subtotal for flat, table, and live rates.
func (s *ShippingService) methodRate(ctx context.Context, method *models.ShippingMethod, cart, remaining *CartView) (decimal.Decimal, error) {
	if method.Kind == models.ShippingKindFree {
		return decimal.Zero, nil
	}

	if method.FreeThreshold.Valid && cart.Subtotal.GreaterThanOrEqual(method.FreeThreshold.Decimal) {
		return decimal.Zero, nil
	}

	switch method.Kind {
	case models.ShippingKindFlat, models.ShippingKindLive:
		// Live carrier rates are out of scope here; live falls back to the
		// method's flat rate.
		return method.FlatRate, nil

	case models.ShippingKindTable:
		bands, err := s.store.GetRateBands(ctx, method.ID)
		if err != nil {
			return decimal.Zero, err
		}
		if rate, ok := matchBand(bands, remaining.TotalWeight(), cart.Subtotal, remaining.TotalQuantity()); ok {
			return rate, nil
		}
		return method.FlatRate, nil

	default:
		s.logger.Warn("Unknown shipping method kind, using flat rate",
			zap.String("kind", method.Kind), zap.Int64("method_id", method.ID))
		return method.FlatRate, nil
	}
}

// matchBand looks a banded rate up by weight, else subtotal, else quantity,
// in that priority order.
func matchBand(bands []models.ShippingRateBand, weight, subtotal decimal.Decimal, quantity int) (decimal.Decimal, bool) {
	values := map[string]decimal.Decimal{
		models.BandBasisWeight:   weight,
		models.BandBasisSubtotal: subtotal,
		models.BandBasisQuantity: decimal.NewFromInt(int64(quantity)),
	}

	for _, basis := range []string{models.BandBasisWeight, models.BandBasisSubtotal, models.BandBasisQuantity} {
		value := values[basis]
		for i := range bands {
			band := &bands[i]
			if band.Basis != basis {
				continue
			}
			if value.LessThan(band.Min) {
				continue
			}
			if band.Max.Valid && value.GreaterThan(band.Max.Decimal) {
				continue
			}
			return band.Rate, true
		}
	}
	return decimal.Zero, false
}
