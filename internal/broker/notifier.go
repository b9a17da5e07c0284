package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"stockd/internal/models"
	"stockd/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	publishTimeout = 5 * time.Second

	// DefaultQueueSize is how many notifications may wait for the broker
	DefaultQueueSize = 1024
)

// KafkaNotifier publishes tenant notifications to the notifications topic,
// keyed by tenant so each tenant's events stay ordered. Notify only queues
// the event; a single background sender writes the queue to Kafka in order.
type KafkaNotifier struct {
	producer *Producer
	queue    chan queuedNotification
	done     chan struct{}
	mu       sync.RWMutex
	closed   bool
	logger   *zap.Logger
}

type queuedNotification struct {
	ctx          context.Context
	notification models.Notification
}

// NewKafkaNotifier creates a notifier on top of a producer and starts its sender
func NewKafkaNotifier(producer *Producer, queueSize int) *KafkaNotifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	n := &KafkaNotifier{
		producer: producer,
		queue:    make(chan queuedNotification, queueSize),
		done:     make(chan struct{}),
		logger:   util.GetLogger(),
	}
	go n.run()
	return n
}

// Notify queues one event without waiting for the broker. Events that do
// not fit in the queue are dropped and counted as failed.
func (n *KafkaNotifier) Notify(ctx context.Context, tenantID, event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		util.NotificationsFailedTotal.WithLabelValues(event).Inc()
		n.logger.Error("Failed to encode notification", zap.String("event", event), zap.Error(err))
		return
	}

	q := queuedNotification{
		ctx:          context.WithoutCancel(ctx),
		notification: NewNotification(tenantID, event, json.RawMessage(body)),
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop(q, "notifier closed")
		return
	}

	select {
	case n.queue <- q:
	default:
		n.drop(q, "notification queue full")
	}
}

// Close stops accepting events and waits for queued ones to be sent
func (n *KafkaNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	<-n.done
}

func (n *KafkaNotifier) run() {
	defer close(n.done)
	for q := range n.queue {
		n.publish(q)
	}
}

func (n *KafkaNotifier) publish(q queuedNotification) {
	ctx, span := util.StartSpan(q.ctx, "KafkaNotifier.Publish")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	event := q.notification.Event
	if err := n.producer.PublishEvent(ctx, q.notification.TenantID, q.notification); err != nil {
		util.NotificationsFailedTotal.WithLabelValues(event).Inc()
		n.logger.Error("Failed to publish notification",
			zap.String("tenant_id", q.notification.TenantID),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	util.NotificationsPublishedTotal.WithLabelValues(event).Inc()
}

func (n *KafkaNotifier) drop(q queuedNotification, reason string) {
	util.NotificationsFailedTotal.WithLabelValues(q.notification.Event).Inc()
	n.logger.Warn("Dropping notification",
		zap.String("reason", reason),
		zap.String("tenant_id", q.notification.TenantID),
		zap.String("event", q.notification.Event),
	)
}

// NewNotification wraps a payload in the notification envelope
func NewNotification(tenantID, event string, payload interface{}) models.Notification {
	return models.Notification{
		EventID:   uuid.New().String(),
		Event:     event,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// DecodeNotification parses a message produced by KafkaNotifier
func DecodeNotification(msg kafka.Message) (*models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if n.TenantID == "" || n.Event == "" {
		return nil, fmt.Errorf("notification %s has no tenant or event", n.EventID)
	}
	return &n, nil
}
