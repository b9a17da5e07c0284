package service

import (
	"context"
	"fmt"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/txn"
	"stockd/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService creates sales orders against the stock ledger and tracks
// their fulfillment and cancellation.
type OrderService struct {
	runner    Runner
	repos     store.Repositories
	movements *MovementRecorder
	notifier  Notifier
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(runner Runner, repos store.Repositories, movements *MovementRecorder, notifier Notifier) *OrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &OrderService{
		runner:    runner,
		repos:     repos,
		movements: movements,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email" binding:"omitempty,email"`
	Notes         string             `json:"notes"`
}

// OrderItemRequest represents a line of an order. Price defaults to the
// variant's catalog price.
type OrderItemRequest struct {
	ProductID  string           `json:"product_id" binding:"required"`
	VariantSKU string           `json:"variant_sku" binding:"required"`
	Quantity   int              `json:"quantity" binding:"required,min=1"`
	Price      *decimal.Decimal `json:"price,omitempty"`
}

// FulfillmentRequest marks part of an order line as delivered
type FulfillmentRequest struct {
	VariantSKU string `json:"variant_sku" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
}

// OrderList is a page of orders
type OrderList struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// reservedLine tracks a ledger mutation made while creating an order
type reservedLine struct {
	item     OrderItemRequest
	level    *models.StockLevel
	movement *models.StockMovement
}

// CreateOrder reserves stock for every line and persists a CONFIRMED order.
// Either every line is reserved or none is.
func (s *OrderService) CreateOrder(ctx context.Context, tenantID, actorID string, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateOrderRequest(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	var (
		order  *models.Order
		levels []*models.StockLevel
		out    outbox
	)
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		out.reset()
		created, reserved, err := s.createOrder(ctx, repos, tenantID, actorID, req, &out)
		order, levels = created, reserved
		return err
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.LoggerFor(ctx).Warn("Order creation failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	alerts, err := lowStockEvents(ctx, s.repos, tenantID, levels)
	if err != nil {
		s.logger.Warn("Low stock check failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	queueLowStock(&out, alerts)

	out.add(models.EventOrderCreated, order)
	out.flush(ctx, s.notifier, tenantID)
	return order, nil
}

// createOrder reserves every line, persists the order and only then writes
// the SALE movements. A conflict on the order number therefore never leaves
// movements behind to reverse.
func (s *OrderService) createOrder(ctx context.Context, repos store.Repositories, tenantID, actorID string, req *CreateOrderRequest, out *outbox) (*models.Order, []*models.StockLevel, error) {
	lines := make([]reservedLine, 0, len(req.Items))
	abort := func(err error) (*models.Order, []*models.StockLevel, error) {
		if !txn.IsAtomic(ctx) {
			s.compensate(ctx, repos, tenantID, actorID, lines)
		}
		return nil, nil, err
	}

	start := time.Now()
	for _, item := range req.Items {
		level, err := repos.Ledger().Reserve(ctx, tenantID, item.ProductID, item.VariantSKU, item.Quantity)
		if err != nil {
			util.StockReservationsFailed.WithLabelValues(failureReason(err)).Inc()
			return abort(err)
		}
		lines = append(lines, reservedLine{item: item, level: level})
	}
	util.StockReserveLatency.Observe(time.Since(start).Seconds())

	number, err := nextNumber(ctx, repos, tenantID, store.SequenceOrders, "ORD")
	if err != nil {
		return abort(err)
	}

	items := make([]models.OrderItem, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		price, err := unitPrice(ctx, repos, tenantID, line.item)
		if err != nil {
			return abort(err)
		}
		items[i] = models.OrderItem{
			ProductID:         line.item.ProductID,
			VariantSKU:        line.item.VariantSKU,
			Quantity:          line.item.Quantity,
			FulfilledQuantity: 0,
			Price:             price,
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.item.Quantity))))
	}

	ts := now()
	order := &models.Order{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		OrderNumber:   number,
		Status:        models.OrderStatusConfirmed,
		Items:         items,
		TotalAmount:   total,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Notes:         req.Notes,
		CreatedBy:     actorID,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := repos.Orders().Create(ctx, order); err != nil {
		return abort(err)
	}

	for i := range lines {
		movement, err := s.movements.Record(ctx, repos, MovementEntry{
			TenantID:  tenantID,
			ProductID: lines[i].item.ProductID,
			SKU:       lines[i].item.VariantSKU,
			Type:      models.MovementSale,
			Quantity:  -lines[i].item.Quantity,
			ActorID:   actorID,
			Reference: "Order " + number,
		})
		if err != nil {
			if !txn.IsAtomic(ctx) {
				s.discard(ctx, repos, order)
			}
			return abort(err)
		}
		lines[i].movement = movement
	}

	levels := make([]*models.StockLevel, len(lines))
	for i, line := range lines {
		levels[i] = line.level
		out.add(models.EventStockMovement, movementEvent(line.movement, line.level.ProductName))
	}
	return order, levels, nil
}

// compensate undoes the reservations of a failed order when no transaction
// can roll them back. Only lines whose SALE was recorded get a RETURN.
func (s *OrderService) compensate(ctx context.Context, repos store.Repositories, tenantID, actorID string, lines []reservedLine) {
	// a cancelled request must not strand reserved stock
	ctx = context.WithoutCancel(ctx)
	logger := util.LoggerFor(ctx)

	for _, line := range lines {
		if _, err := repos.Ledger().Release(ctx, tenantID, line.item.ProductID, line.item.VariantSKU, line.item.Quantity); err != nil {
			logger.Error("Failed to release reservation of aborted order",
				zap.String("tenant_id", tenantID),
				zap.String("product_id", line.item.ProductID),
				zap.String("sku", line.item.VariantSKU),
				zap.Error(err),
			)
			continue
		}
		if line.movement == nil {
			continue
		}
		_, err := s.movements.Record(ctx, repos, MovementEntry{
			TenantID:  tenantID,
			ProductID: line.item.ProductID,
			SKU:       line.item.VariantSKU,
			Type:      models.MovementReturn,
			Quantity:  line.item.Quantity,
			ActorID:   actorID,
			Reference: "Order aborted",
		})
		if err != nil {
			logger.Error("Failed to record reversal of aborted order", zap.Error(err))
		}
	}
}

// discard cancels an order persisted by a unit of work that later failed
func (s *OrderService) discard(ctx context.Context, repos store.Repositories, order *models.Order) {
	ctx = context.WithoutCancel(ctx)

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = now()
	if err := repos.Orders().Update(ctx, order); err != nil {
		util.LoggerFor(ctx).Error("Failed to cancel aborted order",
			zap.String("tenant_id", order.TenantID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func unitPrice(ctx context.Context, repos store.Repositories, tenantID string, item OrderItemRequest) (decimal.Decimal, error) {
	if item.Price != nil {
		return *item.Price, nil
	}

	product, err := repos.Products().GetByID(ctx, tenantID, item.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	variant := product.FindVariant(item.VariantSKU)
	if variant == nil {
		return decimal.Zero, apperr.NotFound("variant %s not found", item.VariantSKU)
	}
	return variant.Price, nil
}

func validateOrderRequest(req *CreateOrderRequest) error {
	if req == nil || len(req.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	for i, item := range req.Items {
		if item.ProductID == "" || item.VariantSKU == "" {
			return apperr.Validation("item %d: product and variant are required", i+1)
		}
		if item.Quantity < 1 {
			return apperr.Validation("item %d: quantity must be at least 1", i+1)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return apperr.Validation("item %d: price must not be negative", i+1)
		}
	}
	return nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.repos.Orders().GetByID(ctx, tenantID, orderID)
}

// ListOrders returns a page of orders, optionally filtered by status
func (s *OrderService) ListOrders(ctx context.Context, tenantID, status string, page models.Page) (*OrderList, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, total, err := s.repos.Orders().List(ctx, tenantID, status, page)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderList{Orders: orders, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// FulfillOrderItems records delivery progress. Stock is not moved again.
func (s *OrderService) FulfillOrderItems(ctx context.Context, tenantID, orderID string, fulfillments []FulfillmentRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.FulfillOrderItems")
	defer span.End()

	if len(fulfillments) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}

	var order *models.Order
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.Orders().GetByID(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := checkOpen(current, "fulfill"); err != nil {
			return err
		}

		for _, f := range fulfillments {
			if err := applyFulfillment(current, f); err != nil {
				return err
			}
		}
		if current.FullyFulfilled() {
			current.Status = models.OrderStatusFulfilled
		}
		current.UpdatedAt = now()

		if err := repos.Orders().Update(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	if order.Status == models.OrderStatusFulfilled {
		util.OrdersFulfilledTotal.Inc()
	}
	s.logger.Info("Order items fulfilled",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", orderID),
		zap.String("status", order.Status),
	)
	s.notifier.Notify(ctx, tenantID, models.EventOrderUpdated, order)
	return order, nil
}

func applyFulfillment(order *models.Order, f FulfillmentRequest) error {
	if f.Quantity <= 0 {
		return apperr.InvalidTransition("fulfillment quantity for %s must be positive", f.VariantSKU)
	}

	found := false
	remaining := f.Quantity
	for i := range order.Items {
		item := &order.Items[i]
		if item.VariantSKU != f.VariantSKU {
			continue
		}
		found = true
		take := item.Remaining()
		if take > remaining {
			take = remaining
		}
		item.FulfilledQuantity += take
		remaining -= take
		if remaining == 0 {
			return nil
		}
	}

	if !found {
		return apperr.NotFound("item %s not found in order %s", f.VariantSKU, order.OrderNumber)
	}
	return apperr.InvalidTransition("cannot fulfill more than ordered quantity for %s", f.VariantSKU)
}

// FulfillOrder marks the whole order delivered
func (s *OrderService) FulfillOrder(ctx context.Context, tenantID, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.FulfillOrder")
	defer span.End()

	var order *models.Order
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.Orders().GetByID(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := checkOpen(current, "fulfill"); err != nil {
			return err
		}

		for i := range current.Items {
			current.Items[i].FulfilledQuantity = current.Items[i].Quantity
		}
		current.Status = models.OrderStatusFulfilled
		current.UpdatedAt = now()

		if err := repos.Orders().Update(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersFulfilledTotal.Inc()
	s.logger.Info("Order fulfilled", zap.String("tenant_id", tenantID), zap.String("order_id", orderID))
	s.notifier.Notify(ctx, tenantID, models.EventOrderUpdated, order)
	return order, nil
}

// CancelOrder returns the full ordered quantity of every line to stock
func (s *OrderService) CancelOrder(ctx context.Context, tenantID, orderID, actorID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	var (
		order *models.Order
		out   outbox
	)
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		out.reset()

		current, err := repos.Orders().GetByID(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := checkOpen(current, "cancel"); err != nil {
			return err
		}

		current.Status = models.OrderStatusCancelled
		current.UpdatedAt = now()
		if err := repos.Orders().Update(ctx, current); err != nil {
			return err
		}

		reference := fmt.Sprintf("Order %s cancelled", current.OrderNumber)
		for _, item := range current.Items {
			level, err := repos.Ledger().Release(ctx, tenantID, item.ProductID, item.VariantSKU, item.Quantity)
			if err != nil {
				return err
			}
			movement, err := s.movements.Record(ctx, repos, MovementEntry{
				TenantID:  tenantID,
				ProductID: item.ProductID,
				SKU:       item.VariantSKU,
				Type:      models.MovementReturn,
				Quantity:  item.Quantity,
				ActorID:   actorID,
				Reference: reference,
			})
			if err != nil {
				return err
			}
			out.add(models.EventStockMovement, movementEvent(movement, level.ProductName))
		}

		order = current
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
	)

	out.add(models.EventOrderUpdated, order)
	out.flush(ctx, s.notifier, tenantID)
	return order, nil
}

// checkOpen rejects changes to FULFILLED and CANCELLED orders
func checkOpen(order *models.Order, action string) error {
	switch order.Status {
	case models.OrderStatusCancelled:
		return apperr.InvalidTransition("cannot %s order %s: order already cancelled", action, order.OrderNumber)
	case models.OrderStatusFulfilled:
		return apperr.InvalidTransition("cannot %s order %s: order already fulfilled", action, order.OrderNumber)
	}
	return nil
}

func failureReason(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindInsufficientStock:
		return "insufficient_stock"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindInvalidTransition:
		return "invalid_transition"
	case apperr.KindValidation:
		return "invalid_request"
	case apperr.KindTransientConflict:
		return "conflict"
	default:
		return "internal"
	}
}
