// Package realtime delivers tenant notifications to connected clients.
package realtime

import (
	"context"
	"sync"
	"time"

	"stockd/internal/models"
	"stockd/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Hub keeps the live subscribers of every tenant
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	buffer      int
	logger      *zap.Logger
}

// Subscription receives the notifications of one tenant until closed
type Subscription struct {
	TenantID string
	ch       chan models.Notification
	hub      *Hub
	once     sync.Once
}

// NewHub creates a hub whose subscribers buffer up to buffer notifications
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		buffer:      buffer,
		logger:      util.GetLogger(),
	}
}

// Subscribe registers a new subscriber for tenantID
func (h *Hub) Subscribe(tenantID string) *Subscription {
	sub := &Subscription{
		TenantID: tenantID,
		ch:       make(chan models.Notification, h.buffer),
		hub:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[tenantID] == nil {
		h.subscribers[tenantID] = make(map[*Subscription]struct{})
	}
	h.subscribers[tenantID][sub] = struct{}{}
	return sub
}

// C returns the channel notifications arrive on. It is closed by Close.
func (s *Subscription) C() <-chan models.Notification {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		subs := s.hub.subscribers[s.TenantID]
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.hub.subscribers, s.TenantID)
		}
		close(s.ch)
	})
}

// Publish hands n to every subscriber of its tenant without blocking.
// Subscribers whose buffer is full miss the notification.
func (h *Hub) Publish(n models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subscribers[n.TenantID] {
		select {
		case sub.ch <- n:
			delivered++
		default:
			util.NotificationsFailedTotal.WithLabelValues(n.Event).Inc()
			h.logger.Warn("Dropping notification for slow subscriber",
				zap.String("tenant_id", n.TenantID),
				zap.String("event", n.Event),
			)
		}
	}
	return delivered
}

// Notify publishes directly to local subscribers. Used when no broker is configured.
func (h *Hub) Notify(ctx context.Context, tenantID, event string, payload interface{}) {
	h.Publish(models.Notification{
		EventID:   uuid.New().String(),
		Event:     event,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	util.NotificationsPublishedTotal.WithLabelValues(event).Inc()
}

// Subscribers returns the number of live subscribers of tenantID
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[tenantID])
}
