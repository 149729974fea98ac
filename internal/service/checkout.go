package service

import (
	"context"
	"strings"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/checkout"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// subtotalTolerance is the allowed drift between the live cart subtotal and
// the snapshot's before the buyer is sent back to re-price.
var subtotalTolerance = decimal.NewFromFloat(0.01)

// CeilingPolicy gates order creation; injected so deployments without a
// licensing concept can disable it.
type CeilingPolicy interface {
	Allow(ctx context.Context) error
}

// MonthlyCeiling rejects commits once the calendar month's order count
// reaches the configured limit. A limit of zero or less disables the check.
type MonthlyCeiling struct {
	store *store.Store
	limit int
}

// NewMonthlyCeiling creates the default ceiling policy.
func NewMonthlyCeiling(store *store.Store, limit int) *MonthlyCeiling {
	return &MonthlyCeiling{store: store, limit: limit}
}

func (m *MonthlyCeiling) Allow(ctx context.Context) error {
	if m.limit <= 0 {
		return nil
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	count, err := m.store.CountOrdersSince(ctx, monthStart)
	if err != nil {
		return checkout.Internal("order count failed", err)
	}
	if count >= m.limit {
		return checkout.BusinessRule(checkout.ReasonCeilingReached,
			"the monthly order limit of %d has been reached", m.limit)
	}
	return nil
}

// CheckoutService runs the locked commit: verify the confirmed payment
// against the snapshot, then atomically lock stock, write the order, record
// coupon usage, decrement inventory, and clear the cart.
type CheckoutService struct {
	store     *store.Store
	redis     *redisclient.Client
	gateway   gateway.Gateway
	cart      *CartService
	discount  *DiscountService
	shipping  *ShippingService
	ceiling   CeilingPolicy
	publisher *broker.EventPublisher
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	st *store.Store,
	redis *redisclient.Client,
	gw gateway.Gateway,
	cart *CartService,
	discount *DiscountService,
	shipping *ShippingService,
	ceiling CeilingPolicy,
	publisher *broker.EventPublisher,
	ttl time.Duration,
) *CheckoutService {
	return &CheckoutService{
		store:     st,
		redis:     redis,
		gateway:   gw,
		cart:      cart,
		discount:  discount,
		shipping:  shipping,
		ceiling:   ceiling,
		publisher: publisher,
		ttl:       ttl,
		logger:    util.GetLogger(),
	}
}

// CommitRequest carries everything the commit step needs from the caller.
type CommitRequest struct {
	Owner         models.CartOwner
	ReservationID string // empty only for carts that price to zero
	Email         string
	Billing       models.Address
	Shipping      models.Address
}

// Commit turns the owner's cart into a durable order. Every failure leaves
// the database untouched; the returned error's Kind tells the caller
// whether to retry, re-price, or fix input.
func (s *CheckoutService) Commit(ctx context.Context, req *CommitRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Commit")
	defer span.End()

	start := time.Now()
	order, err := s.commit(ctx, req)
	if err != nil {
		util.CommitsFailedTotal.WithLabelValues(checkout.ReasonOf(err)).Inc()
		return nil, err
	}

	util.CommitLatency.Observe(time.Since(start).Seconds())
	util.OrdersCommittedTotal.Inc()
	return order, nil
}

func (s *CheckoutService) commit(ctx context.Context, req *CommitRequest) (*models.Order, error) {
	if err := validateCommitRequest(req); err != nil {
		return nil, err
	}

	cart, err := s.cart.Load(ctx, req.Owner)
	if err != nil {
		return nil, checkout.Internal("cart load failed", err)
	}
	if len(cart.Lines) == 0 {
		return nil, checkout.Validation(checkout.ReasonCartEmpty, "cart is empty")
	}
	for i := range cart.Lines {
		if cart.Lines[i].Quantity <= 0 {
			return nil, checkout.Validation("invalid_quantity",
				"invalid quantity for %q", cart.Lines[i].ProductName)
		}
	}

	if err := s.ceiling.Allow(ctx); err != nil {
		return nil, err
	}

	snap, claimed, err := s.resolveSnapshot(ctx, req, cart)
	if err != nil {
		return nil, err
	}

	// A claimed snapshot is consumed; give it back on failure so the buyer
	// can retry the same reservation instead of paying twice.
	committed := false
	if claimed {
		defer func() {
			if !committed {
				if err := s.redis.SaveSnapshot(ctx, snap, s.ttl); err != nil {
					s.logger.Error("Failed to restore snapshot after aborted commit",
						zap.String("reservation_id", snap.ReservationID), zap.Error(err))
				}
			}
		}()
	}

	if cart.Subtotal.Sub(snap.Subtotal).Abs().GreaterThan(subtotalTolerance) {
		util.SnapshotsStaleTotal.Inc()
		return nil, checkout.Stale(checkout.ReasonCartChanged,
			"cart changed since payment was reserved, please retry")
	}

	if !cart.AllDigital() && snap.ShippingMethod == "" {
		return nil, checkout.BusinessRule(checkout.ReasonNoShippingMethod,
			"no shipping method selected for a physical order")
	}

	if !snap.Free {
		if err := s.verifyPayment(ctx, snap); err != nil {
			return nil, err
		}
	}

	couponID, popupID, err := s.lookupCouponRows(ctx, snap)
	if err != nil {
		return nil, err
	}

	order, err := s.runCommitTx(ctx, req, cart, snap, couponID, popupID)
	if err != nil {
		return nil, err
	}
	committed = true

	if err := s.discount.Clear(ctx, req.Owner); err != nil {
		s.logger.Error("Failed to clear discount state", zap.Error(err))
	}

	s.publishCommitted(ctx, order)

	s.logger.Info("Order committed",
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("payment_status", order.PaymentStatus))

	return order, nil
}

func validateCommitRequest(req *CommitRequest) error {
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return checkout.Validation("invalid_email", "a valid email address is required")
	}
	for _, addr := range []*models.Address{&req.Billing, &req.Shipping} {
		if addr.Name == "" || addr.Line1 == "" || addr.City == "" || addr.Country == "" {
			return checkout.Validation("invalid_address", "name, line1, city and country are required")
		}
	}
	return nil
}

// resolveSnapshot claims the buyer's snapshot, or prices the cart fresh
// when no reservation id was supplied, allowed only for zero-total carts.
func (s *CheckoutService) resolveSnapshot(ctx context.Context, req *CommitRequest, cart *CartView) (*models.PriceSnapshot, bool, error) {
	if req.ReservationID == "" {
		snap, err := s.priceFreeOrder(ctx, req, cart)
		return snap, false, err
	}

	snap, err := s.redis.ClaimSnapshot(ctx, req.ReservationID)
	if err != nil {
		return nil, false, checkout.Internal("snapshot claim failed", err)
	}
	if snap == nil || snap.OwnerKey != req.Owner.Key() {
		util.SnapshotsStaleTotal.Inc()
		return nil, false, checkout.Stale(checkout.ReasonSessionExpired,
			"payment session expired, please retry")
	}
	if snap.Stale(time.Now(), s.ttl) {
		util.SnapshotsStaleTotal.Inc()
		return nil, false, checkout.Stale(checkout.ReasonSessionExpired,
			"payment session expired, please retry")
	}
	return snap, true, nil
}

func (s *CheckoutService) priceFreeOrder(ctx context.Context, req *CommitRequest, cart *CartView) (*models.PriceSnapshot, error) {
	applied, discountAmount, err := s.discount.Resolve(ctx, req.Owner, cart)
	if err != nil {
		return nil, err
	}

	var quote *ShippingQuote
	if cart.AllDigital() {
		quote = DigitalQuote()
	} else {
		quote, err = s.shipping.Resolve(ctx, cart, req.Shipping.Country, req.Shipping.State, nil)
		if err != nil {
			return nil, err
		}
		if quote == nil {
			return nil, checkout.BusinessRule(checkout.ReasonNoShippingMethod,
				"no shipping method available for %s", req.Shipping.Country)
		}
	}

	total := cart.Subtotal.Add(quote.Cost).Sub(discountAmount).Round(2)
	if total.IsPositive() {
		return nil, checkout.Validation("payment_required",
			"this order requires payment; reserve a payment first")
	}

	snap := &models.PriceSnapshot{
		ReservationID:    "free_" + uuid.New().String(),
		OwnerKey:         req.Owner.Key(),
		Subtotal:         cart.Subtotal,
		ShippingCost:     quote.Cost,
		ShippingMethodID: quote.MethodID,
		ShippingMethod:   quote.MethodName,
		DiscountAmount:   discountAmount,
		Total:            total,
		Free:             true,
		CreatedAt:        time.Now(),
	}
	if applied != nil {
		code := applied.Code()
		snap.CouponCode = &code
		snap.CouponKind = applied.Kind()
	}
	return snap, nil
}

// verifyPayment re-reads the charge and requires succeeded status with a
// captured amount exactly equal to the snapshot's. Runs before any write.
func (s *CheckoutService) verifyPayment(ctx context.Context, snap *models.PriceSnapshot) error {
	start := time.Now()
	charge, err := s.gateway.Retrieve(ctx, snap.ReservationID)
	util.GatewayVerifyLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return checkout.Internal("gateway verification failed", err)
	}

	if charge.Status != gateway.ChargeStatusSucceeded {
		util.PaymentMismatchTotal.Inc()
		return checkout.PaymentMismatch("payment_not_captured",
			"payment is %s, not captured", charge.Status)
	}
	if charge.CapturedAmount != snap.AmountMinor() {
		util.PaymentMismatchTotal.Inc()
		return checkout.PaymentMismatch("amount_mismatch",
			"captured amount %d does not match expected %d", charge.CapturedAmount, snap.AmountMinor())
	}
	return nil
}

func (s *CheckoutService) lookupCouponRows(ctx context.Context, snap *models.PriceSnapshot) (*int64, *int64, error) {
	if snap.CouponCode == nil {
		return nil, nil, nil
	}

	switch snap.CouponKind {
	case DiscountPopup:
		popup, err := s.store.GetPopupCouponByCode(ctx, *snap.CouponCode)
		if err != nil {
			return nil, nil, checkout.Internal("popup coupon lookup failed", err)
		}
		if popup == nil {
			return nil, nil, checkout.BusinessRule("coupon_revoked",
				"the applied discount %q is no longer available", *snap.CouponCode)
		}
		return nil, &popup.ID, nil
	default:
		coupon, err := s.store.GetCouponByCode(ctx, *snap.CouponCode)
		if err != nil {
			return nil, nil, checkout.Internal("coupon lookup failed", err)
		}
		if coupon == nil {
			return nil, nil, checkout.BusinessRule("coupon_revoked",
				"the applied discount %q is no longer available", *snap.CouponCode)
		}
		return &coupon.ID, nil, nil
	}
}

// runCommitTx is the all-or-nothing transactional body.
func (s *CheckoutService) runCommitTx(ctx context.Context, req *CommitRequest, cart *CartView, snap *models.PriceSnapshot, couponID, popupID *int64) (*models.Order, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, checkout.Internal("failed to open transaction", err)
	}
	defer tx.Rollback()

	// Step 1: lock every stock row in the cart's stable order and re-read
	// counts. Other checkouts may have committed since the cart was priced.
	for i := range cart.Lines {
		line := &cart.Lines[i]
		stock, err := s.store.LockStock(ctx, tx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, checkout.Internal("stock lock failed", err)
		}
		if !line.IsDigital && stock < line.Quantity {
			util.InventoryConflictsTotal.Inc()
			return nil, checkout.InventoryConflict(line.ProductName, stock, line.Quantity)
		}
	}

	// Step 2: fresh address rows each time.
	if err := s.store.InsertAddressTx(ctx, tx, &req.Billing); err != nil {
		return nil, checkout.Internal("failed to persist billing address", err)
	}
	if err := s.store.InsertAddressTx(ctx, tx, &req.Shipping); err != nil {
		return nil, checkout.Internal("failed to persist shipping address", err)
	}

	// Step 3: order header from the snapshot's totals.
	paymentStatus := models.PaymentStatusPaid
	if snap.Free {
		paymentStatus = models.PaymentStatusFree
	}
	reservationID := snap.ReservationID
	order := &models.Order{
		OrderNumber:       newOrderNumber(),
		OwnerKey:          req.Owner.Key(),
		AccountID:         req.Owner.AccountID,
		Email:             req.Email,
		Status:            models.OrderStatusPending,
		PaymentStatus:     paymentStatus,
		ReservationID:     &reservationID,
		Subtotal:          snap.Subtotal,
		Tax:               decimal.Zero,
		ShippingCost:      snap.ShippingCost,
		ShippingMethod:    snap.ShippingMethod,
		Discount:          snap.DiscountAmount,
		CouponCode:        snap.CouponCode,
		Total:             snap.Total,
		BillingAddressID:  req.Billing.ID,
		ShippingAddressID: req.Shipping.ID,
	}
	if err := s.store.InsertOrderTx(ctx, tx, order); err != nil {
		return nil, checkout.Internal("failed to insert order", err)
	}

	// Step 4: coupon usage rides the same transaction as the order, so a
	// crash cannot produce a used coupon without an order or vice versa.
	if couponID != nil {
		if err := s.store.RecordCouponUsageTx(ctx, tx, *couponID, req.Owner.AccountID, order.ID); err != nil {
			return nil, checkout.Internal("failed to record coupon usage", err)
		}
	}
	if popupID != nil {
		if err := s.store.MarkPopupCouponUsedTx(ctx, tx, *popupID); err != nil {
			return nil, checkout.Internal("failed to mark popup coupon used", err)
		}
	}

	// Step 5: freeze items and decrement stock under the step-1 locks.
	order.Items = order.Items[:0]
	for i := range cart.Lines {
		line := &cart.Lines[i]
		item := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.ProductName,
			SKU:       line.SKU,
			UnitPrice: line.UnitPrice(),
			Quantity:  line.Quantity,
			IsDigital: line.IsDigital,
			IsLicense: line.IsLicense,
		}
		if err := s.store.InsertOrderItemTx(ctx, tx, item); err != nil {
			return nil, checkout.Internal("failed to insert order item", err)
		}
		order.Items = append(order.Items, *item)

		if line.IsDigital {
			continue
		}
		// Zero rows affected here would mean the guard failed despite the
		// lock, which is a logic defect, not a user condition.
		if err := s.store.DecrementStock(ctx, tx, line.ProductID, line.VariantID, line.Quantity); err != nil {
			return nil, checkout.Internal("stock decrement invariant violated", err)
		}
	}

	// Step 6: initial history row.
	if err := s.store.InsertStatusHistoryTx(ctx, tx, order.ID, models.OrderStatusPending, "order placed"); err != nil {
		return nil, checkout.Internal("failed to insert status history", err)
	}

	// Step 7: clear the cart inside the same transaction.
	if err := s.store.ClearCartTx(ctx, tx, req.Owner.Key()); err != nil {
		return nil, checkout.Internal("failed to clear cart", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, checkout.Internal("commit failed", err)
	}
	return order, nil
}

func (s *CheckoutService) publishCommitted(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for i := range order.Items {
		items = append(items, models.OrderItemData{
			OrderItemID: order.Items[i].ID,
			ProductID:   order.Items[i].ProductID,
			Quantity:    order.Items[i].Quantity,
			IsDigital:   order.Items[i].IsDigital,
			IsLicense:   order.Items[i].IsLicense,
		})
	}

	event := &models.OrderCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCommitted,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Email:       order.Email,
		TotalMinor:  order.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Items:       items,
	}

	if err := s.publisher.PublishOrderCommitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCommitted event",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

func newOrderNumber() string {
	return "ORD-" + time.Now().UTC().Format("20060102") + "-" + strings.ToUpper(uuid.New().String()[:8])
}
