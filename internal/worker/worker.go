package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/service"
	"checkout-service/internal/util"
)

// FulfillmentWorker consumes OrderCommitted events and runs the
// post-commit dispatcher off the request path. Dispatch is idempotent, so
// a failed run is simply redelivered by the consumer group.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, fulfillment *service.FulfillmentService) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCommitted(fulfillment.Dispatch)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	util.GetLogger().Info("Stopping fulfillment worker")
	return w.consumer.Close()
}
