package worker

import (
	"context"

	"stockd/internal/broker"
	"stockd/internal/models"
	"stockd/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher receives decoded notifications
type Publisher interface {
	Publish(n models.Notification) int
}

// NotificationWorker relays the notifications topic to this instance's
// connected clients.
type NotificationWorker struct {
	consumer  *broker.Consumer
	publisher Publisher
	logger    *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, publisher Publisher) *NotificationWorker {
	return &NotificationWorker{
		consumer:  consumer,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Start blocks consuming until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage decodes one message and hands it to the publisher
func (w *NotificationWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	n, err := broker.DecodeNotification(msg)
	if err != nil {
		return err
	}

	delivered := w.publisher.Publish(*n)
	w.logger.Debug("Relayed notification",
		zap.String("tenant_id", n.TenantID),
		zap.String("event", n.Event),
		zap.Int("subscribers", delivered),
	)
	return nil
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
