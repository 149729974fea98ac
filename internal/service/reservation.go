package service

import (
	"context"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReservationService computes the authoritative total and persists it as a
// price snapshot keyed by the gateway reservation id. Commit consumes the
// snapshot instead of repricing, so a coupon expiring or a rate changing
// between the two steps cannot drift the charged amount.
type ReservationService struct {
	redis    *redisclient.Client
	gateway  gateway.Gateway
	cart     *CartService
	discount *DiscountService
	shipping *ShippingService
	ttl      time.Duration
	logger   *zap.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(
	redis *redisclient.Client,
	gw gateway.Gateway,
	cart *CartService,
	discount *DiscountService,
	shipping *ShippingService,
	ttl time.Duration,
) *ReservationService {
	return &ReservationService{
		redis:    redis,
		gateway:  gw,
		cart:     cart,
		discount: discount,
		shipping: shipping,
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// ReserveRequest carries the buyer's checkout selections.
type ReserveRequest struct {
	Owner            models.CartOwner
	Country          string
	State            string
	ShippingMethodID *int64
}

// ReserveResult is either a free-order marker or an open gateway
// reservation plus its snapshot.
type ReserveResult struct {
	Free          bool                  `json:"free"`
	ReservationID string                `json:"reservation_id"`
	ClientSecret  string                `json:"client_secret,omitempty"`
	Snapshot      *models.PriceSnapshot `json:"snapshot"`
}

// ReservePrice prices the cart, opens a gateway reservation for paid
// orders, and persists the snapshot. A non-positive total short-circuits
// to a free order with no gateway call.
func (s *ReservationService) ReservePrice(ctx context.Context, req *ReserveRequest) (*ReserveResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.ReservePrice")
	defer span.End()

	cart, err := s.cart.Load(ctx, req.Owner)
	if err != nil {
		return nil, checkout.Internal("cart load failed", err)
	}
	if len(cart.Lines) == 0 {
		return nil, checkout.Validation(checkout.ReasonCartEmpty, "cart is empty")
	}

	if err := checkAvailability(cart); err != nil {
		return nil, err
	}

	applied, discountAmount, err := s.discount.Resolve(ctx, req.Owner, cart)
	if err != nil {
		return nil, err
	}

	var quote *ShippingQuote
	if cart.AllDigital() {
		quote = DigitalQuote()
	} else {
		quote, err = s.shipping.Resolve(ctx, cart, req.Country, req.State, req.ShippingMethodID)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			return nil, checkout.BusinessRule(checkout.ReasonNoShippingMethod,
				"no shipping method available for %s", req.Country)
		}
	}

	total := cart.Subtotal.Add(quote.Cost).Sub(discountAmount).Round(2)

	snap := &models.PriceSnapshot{
		OwnerKey:         req.Owner.Key(),
		Subtotal:         cart.Subtotal,
		ShippingCost:     quote.Cost,
		ShippingMethodID: quote.MethodID,
		ShippingMethod:   quote.MethodName,
		DiscountAmount:   discountAmount,
		Total:            total,
		CreatedAt:        time.Now(),
	}
	if applied != nil {
		code := applied.Code()
		snap.CouponCode = &code
		snap.CouponKind = applied.Kind()
	}

	result := &ReserveResult{Snapshot: snap}

	if total.LessThanOrEqual(decimal.Zero) {
		snap.Free = true
		snap.ReservationID = "free_" + uuid.New().String()
		result.Free = true
		result.ReservationID = snap.ReservationID
	} else {
		reservation, err := s.gateway.Reserve(ctx, snap.AmountMinor(), map[string]string{
			"owner": req.Owner.Key(),
		})
		if err != nil {
			return nil, checkout.Internal("gateway reserve failed", err)
		}
		snap.ReservationID = reservation.ID
		result.ReservationID = reservation.ID
		result.ClientSecret = reservation.ClientSecret
	}

	if err := s.redis.SaveSnapshot(ctx, snap, s.ttl); err != nil {
		return nil, checkout.Internal("failed to save price snapshot", err)
	}

	util.SnapshotsCreatedTotal.Inc()
	s.logger.Info("Price snapshot reserved",
		zap.String("reservation_id", snap.ReservationID),
		zap.String("owner", req.Owner.Key()),
		zap.String("total", total.StringFixed(2)),
		zap.Bool("free", snap.Free))

	return result, nil
}

// checkAvailability rejects known stock shortfalls before any money is
// reserved. Commit re-checks under lock regardless, but the buyer must not
// pay for a quantity the cart already shows as unavailable. Digital lines
// carry no stock.
func checkAvailability(cart *CartView) error {
	for i := range cart.Lines {
		line := &cart.Lines[i]
		if !line.IsDigital && line.Stock < line.Quantity {
			return checkout.BusinessRule("insufficient_stock",
				"insufficient stock for %q: %d available, %d requested",
				line.ProductName, line.Stock, line.Quantity)
		}
	}
	return nil
}
