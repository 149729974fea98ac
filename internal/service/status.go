package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusService applies order status transitions. Refund and dispute
// transitions are driven exclusively by gateway webhooks matched back by
// the stored reservation id; every transition appends a history row.
// Terminal-state rules are a caller policy, not enforced here.
type StatusService struct {
	store     *store.Store
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewStatusService creates a new status service
func NewStatusService(store *store.Store, publisher *broker.EventPublisher) *StatusService {
	return &StatusService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Transition moves an order to a new status and appends the history row.
func (s *StatusService) Transition(ctx context.Context, orderID int64, status, note string) error {
	return s.store.TransitionOrderStatus(ctx, orderID, status, note)
}

// HandleGatewayEvent applies a verified webhook event. Replays are
// deduplicated through the processed-event ledger keyed by the gateway's
// event id, so a redelivered webhook is a no-op.
func (s *StatusService) HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "StatusService.HandleGatewayEvent")
	defer span.End()

	util.WebhookEventsTotal.WithLabelValues(event.Type).Inc()

	processed, err := s.store.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
		return nil
	}

	order, err := s.store.GetOrderByReservationID(ctx, event.Data.ReservationID)
	if err != nil {
		return fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		// Acknowledge events for reservations we never committed; the
		// gateway would otherwise retry forever.
		s.logger.Warn("Webhook event matched no order",
			zap.String("event_id", event.ID),
			zap.String("reservation_id", event.Data.ReservationID))
		return s.store.MarkEventProcessed(ctx, event.ID, event.Type)
	}

	switch event.Type {
	case gateway.EventChargeRefunded:
		status := models.OrderStatusRefunded
		if event.Partial() {
			status = models.OrderStatusPartiallyRefunded
		}
		if err := s.Transition(ctx, order.ID, status, "gateway charge refunded"); err != nil {
			return fmt.Errorf("failed to transition order: %w", err)
		}
		s.publishRefunded(ctx, order, event.Partial())

	case gateway.EventChargeDisputeCreated:
		if err := s.Transition(ctx, order.ID, models.OrderStatusDisputed, "gateway dispute opened"); err != nil {
			return fmt.Errorf("failed to transition order: %w", err)
		}
		s.publishDisputed(ctx, order, event.Data.Reason)

	default:
		s.logger.Info("Ignoring webhook event type", zap.String("type", event.Type))
	}

	if err := s.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		s.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (s *StatusService) publishRefunded(ctx context.Context, order *models.Order, partial bool) {
	event := &models.OrderRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderRefunded,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Partial:     partial,
	}
	if err := s.publisher.PublishOrderRefunded(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
	}
}

func (s *StatusService) publishDisputed(ctx context.Context, order *models.Order, reason string) {
	event := &models.OrderDisputedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderDisputed,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      reason,
	}
	if err := s.publisher.PublishOrderDisputed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDisputed event", zap.Error(err))
	}
}
