package service

import (
	"context"
	"fmt"
	"time"

	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/txn"
	"stockd/internal/util"

	"go.uber.org/zap"
)

// Runner executes a unit of work atomically, retrying transient conflicts
type Runner interface {
	RunAtomically(ctx context.Context, fn txn.UnitOfWork) error
}

// Notifier fans events out to a tenant's connected clients. Delivery is
// best-effort: implementations log failures instead of returning them.
type Notifier interface {
	Notify(ctx context.Context, tenantID, event string, payload interface{})
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, tenantID, event string, payload interface{}) {}

type pendingEvent struct {
	event   string
	payload interface{}
}

// outbox holds the events of one unit of work until it commits
type outbox struct {
	events []pendingEvent
}

// reset discards events from a previous attempt
func (o *outbox) reset() {
	o.events = o.events[:0]
}

func (o *outbox) add(event string, payload interface{}) {
	o.events = append(o.events, pendingEvent{event: event, payload: payload})
}

func (o *outbox) flush(ctx context.Context, n Notifier, tenantID string) {
	for _, e := range o.events {
		if alert, ok := e.payload.(models.LowStockEvent); ok {
			util.LowStockAlertsTotal.Inc()
			util.GetLogger().Info("Stock below threshold",
				zap.String("tenant_id", tenantID),
				zap.String("product_id", alert.ProductID),
				zap.String("sku", alert.VariantSKU),
				zap.Int("stock", alert.CurrentStock),
				zap.Int("threshold", alert.Threshold),
			)
		}
		n.Notify(ctx, tenantID, e.event, e.payload)
	}
	o.events = nil
}

func formatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// nextNumber allocates the next document number of a tenant from an atomic counter
func nextNumber(ctx context.Context, repos store.Repositories, tenantID, sequence, prefix string) (string, error) {
	n, err := repos.Sequences().Next(ctx, tenantID, sequence)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s number: %w", prefix, err)
	}
	return formatNumber(prefix, n), nil
}

// lowStockEvents returns one alert per variant whose latest level is below
// its threshold and that no outstanding purchase order is already replenishing.
func lowStockEvents(ctx context.Context, repos store.Repositories, tenantID string, levels []*models.StockLevel) ([]models.LowStockEvent, error) {
	latest := make(map[models.VariantKey]int, len(levels))
	var variants []*models.StockLevel
	for _, level := range levels {
		key := models.VariantKey{ProductID: level.ProductID, SKU: level.SKU}
		if i, ok := latest[key]; ok {
			variants[i] = level
			continue
		}
		latest[key] = len(variants)
		variants = append(variants, level)
	}

	var below []*models.StockLevel
	for _, level := range variants {
		if level.Stock < level.LowStockThreshold {
			below = append(below, level)
		}
	}
	if len(below) == 0 {
		return nil, nil
	}

	pending, err := repos.PurchaseOrders().PendingQuantities(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending purchase orders: %w", err)
	}

	var events []models.LowStockEvent
	for _, level := range below {
		if pending[models.VariantKey{ProductID: level.ProductID, SKU: level.SKU}] > 0 {
			continue
		}
		events = append(events, models.LowStockEvent{
			ProductID:    level.ProductID,
			ProductName:  level.ProductName,
			VariantSKU:   level.SKU,
			CurrentStock: level.Stock,
			Threshold:    level.LowStockThreshold,
		})
	}
	return events, nil
}

func movementEvent(m *models.StockMovement, productName string) models.StockMovementEvent {
	return models.StockMovementEvent{
		MovementID:  m.ID,
		ProductID:   m.ProductID,
		ProductName: productName,
		VariantSKU:  m.VariantSKU,
		Quantity:    m.Quantity,
		Type:        m.Type,
		Reference:   m.Reference,
		Timestamp:   m.CreatedAt,
	}
}

func queueLowStock(out *outbox, events []models.LowStockEvent) {
	for _, e := range events {
		out.add(models.EventLowStock, e)
	}
}

func now() time.Time {
	return time.Now().UTC()
}
