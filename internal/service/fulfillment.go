package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers the fire-and-forget order notifications (internal
// alert plus customer email).
type Notifier interface {
	Notify(ctx context.Context, orderID int64) error
}

// LogNotifier is the default notifier; delivery backends plug in behind
// the same interface.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) Notify(ctx context.Context, orderID int64) error {
	n.logger.Info("Order notification", zap.Int64("order_id", orderID))
	return nil
}

// FulfillmentService runs post-commit side effects. It never runs inside
// the commit transaction: these steps can be slow or flaky and must not
// hold row locks. License and download grants are idempotent, so a failed
// dispatch is safe to redeliver; notifications are best-effort.
type FulfillmentService struct {
	store         *store.Store
	status        *StatusService
	notifier      Notifier
	downloadLimit int
	downloadTTL   time.Duration
	logger        *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(
	store *store.Store,
	status *StatusService,
	notifier Notifier,
	downloadLimit int,
	downloadTTL time.Duration,
) *FulfillmentService {
	return &FulfillmentService{
		store:         store,
		status:        status,
		notifier:      notifier,
		downloadLimit: downloadLimit,
		downloadTTL:   downloadTTL,
		logger:        util.GetLogger(),
	}
}

// Dispatch fulfills one committed order. Each side effect is isolated: a
// failing license does not block download grants and vice versa. A non-nil
// return means at least one idempotent effect needs redelivery.
func (s *FulfillmentService) Dispatch(ctx context.Context, event *models.OrderCommittedEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.Dispatch")
	defer span.End()

	var failed []error
	for i := range event.Items {
		item := &event.Items[i]

		if item.IsLicense {
			if err := s.issueLicenses(ctx, item); err != nil {
				util.FulfillmentFailedTotal.WithLabelValues("license").Inc()
				s.logger.Error("License issuance failed",
					zap.Int64("order_item_id", item.OrderItemID), zap.Error(err))
				failed = append(failed, err)
			}
		}

		if item.IsDigital {
			if err := s.grantDownload(ctx, item); err != nil {
				util.FulfillmentFailedTotal.WithLabelValues("download").Inc()
				s.logger.Error("Download grant failed",
					zap.Int64("order_item_id", item.OrderItemID), zap.Error(err))
				failed = append(failed, err)
			}
		}
	}

	// Notification and review-request seeding are best-effort: logged and
	// swallowed, never rolled into the order.
	if err := s.notifier.Notify(ctx, event.OrderID); err != nil {
		util.FulfillmentFailedTotal.WithLabelValues("notify").Inc()
		s.logger.Error("Order notification failed",
			zap.Int64("order_id", event.OrderID), zap.Error(err))
	}
	s.seedReviewRequest(event)

	if len(failed) == 0 {
		if err := s.status.Transition(ctx, event.OrderID, models.OrderStatusProcessing, "fulfillment dispatched"); err != nil {
			s.logger.Error("Failed to mark order processing",
				zap.Int64("order_id", event.OrderID), zap.Error(err))
		}
	}

	return errors.Join(failed...)
}

// issueLicenses generates one key per unit. The (order item, sequence) key
// makes retries idempotent per key.
func (s *FulfillmentService) issueLicenses(ctx context.Context, item *models.OrderItemData) error {
	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return fmt.Errorf("product lookup failed: %w", err)
	}

	for seq := 1; seq <= item.Quantity; seq++ {
		lic := &models.OrderLicense{
			OrderItemID: item.OrderItemID,
			Sequence:    seq,
			LicenseKey:  newLicenseKey(product.EditionCode),
		}
		if err := s.store.InsertLicense(ctx, lic); err != nil {
			return fmt.Errorf("license insert failed for sequence %d: %w", seq, err)
		}
		util.LicensesIssuedTotal.Inc()
	}
	return nil
}

// grantDownload creates the item's bounded download grant.
func (s *FulfillmentService) grantDownload(ctx context.Context, item *models.OrderItemData) error {
	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return fmt.Errorf("product lookup failed: %w", err)
	}

	limit := s.downloadLimit
	if product.DownloadLimit > 0 {
		limit = product.DownloadLimit
	}

	dl := &models.OrderDownload{
		OrderItemID: item.OrderItemID,
		Token:       uuid.New().String(),
		FileRef:     product.FileRef,
		Remaining:   limit,
		ExpiresAt:   time.Now().Add(s.downloadTTL),
	}
	if err := s.store.InsertDownload(ctx, dl); err != nil {
		return fmt.Errorf("download insert failed: %w", err)
	}
	util.DownloadsGrantedTotal.Inc()
	return nil
}

func (s *FulfillmentService) seedReviewRequest(event *models.OrderCommittedEvent) {
	// Review requests are scheduled by an external campaign system; the
	// seed here is only the log line it tails.
	s.logger.Info("Review request seeded",
		zap.String("order_number", event.OrderNumber),
		zap.String("email", event.Email))
}

// newLicenseKey derives a grouped uppercase key, prefixed with the
// product's edition code when it has one.
func newLicenseKey(edition string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	key := fmt.Sprintf("%s-%s-%s-%s", raw[0:5], raw[5:10], raw[10:15], raw[15:20])
	if edition != "" {
		return edition + "-" + key
	}
	return key
}
