package service

import (
	"context"
	"fmt"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseOrderService handles supplier purchase orders and replenishes
// stock as their items are received.
type PurchaseOrderService struct {
	runner    Runner
	repos     store.Repositories
	movements *MovementRecorder
	notifier  Notifier
	logger    *zap.Logger
}

// NewPurchaseOrderService creates a new purchase order service
func NewPurchaseOrderService(runner Runner, repos store.Repositories, movements *MovementRecorder, notifier Notifier) *PurchaseOrderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PurchaseOrderService{
		runner:    runner,
		repos:     repos,
		movements: movements,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// CreatePurchaseOrderRequest represents a request to create a purchase order
type CreatePurchaseOrderRequest struct {
	SupplierID           string                     `json:"supplier_id" binding:"required"`
	Items                []PurchaseOrderItemRequest `json:"items" binding:"required,min=1,dive"`
	ExpectedDeliveryDate *time.Time                 `json:"expected_delivery_date,omitempty"`
	Notes                string                     `json:"notes"`
}

// PurchaseOrderItemRequest represents a line of a purchase order
type PurchaseOrderItemRequest struct {
	ProductID       string          `json:"product_id" binding:"required"`
	VariantSKU      string          `json:"variant_sku" binding:"required"`
	OrderedQuantity int             `json:"ordered_quantity" binding:"required,min=1"`
	Price           decimal.Decimal `json:"price"`
}

// ReceiveItemRequest records a delivery of one purchase order line.
// A Price that differs from the line price replaces it.
type ReceiveItemRequest struct {
	ProductID  string           `json:"product_id" binding:"required"`
	VariantSKU string           `json:"variant_sku" binding:"required"`
	Quantity   int              `json:"quantity" binding:"required,min=1"`
	Price      *decimal.Decimal `json:"price,omitempty"`
}

// PurchaseOrderList is a page of purchase orders
type PurchaseOrderList struct {
	PurchaseOrders []models.PurchaseOrder `json:"purchase_orders"`
	Total          int                    `json:"total"`
	Page           int                    `json:"page"`
	Limit          int                    `json:"limit"`
}

// CreatePurchaseOrder persists a DRAFT purchase order with the next PO number
func (s *PurchaseOrderService) CreatePurchaseOrder(ctx context.Context, tenantID, actorID string, req *CreatePurchaseOrderRequest) (*models.PurchaseOrder, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseOrderService.CreatePurchaseOrder")
	defer span.End()

	if err := validatePurchaseOrderRequest(req); err != nil {
		return nil, err
	}

	var po *models.PurchaseOrder
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		if _, err := repos.Suppliers().GetByID(ctx, tenantID, req.SupplierID); err != nil {
			return err
		}
		for _, item := range req.Items {
			if err := ensureVariant(ctx, repos, tenantID, item.ProductID, item.VariantSKU); err != nil {
				return err
			}
		}

		number, err := nextNumber(ctx, repos, tenantID, store.SequencePurchaseOrders, "PO")
		if err != nil {
			return err
		}

		items := make([]models.PurchaseOrderItem, len(req.Items))
		for i, item := range req.Items {
			items[i] = models.PurchaseOrderItem{
				ProductID:        item.ProductID,
				VariantSKU:       item.VariantSKU,
				OrderedQuantity:  item.OrderedQuantity,
				ReceivedQuantity: 0,
				Price:            item.Price,
			}
		}

		ts := now()
		created := &models.PurchaseOrder{
			ID:                   uuid.New().String(),
			TenantID:             tenantID,
			SupplierID:           req.SupplierID,
			PONumber:             number,
			Status:               models.POStatusDraft,
			Items:                items,
			ExpectedDeliveryDate: req.ExpectedDeliveryDate,
			TotalAmount:          purchaseOrderTotal(items),
			Notes:                req.Notes,
			CreatedBy:            actorID,
			CreatedAt:            ts,
			UpdatedAt:            ts,
		}
		if err := repos.PurchaseOrders().Create(ctx, created); err != nil {
			return err
		}
		po = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PurchaseOrdersCreatedTotal.Inc()
	s.logger.Info("Purchase order created",
		zap.String("tenant_id", tenantID),
		zap.String("po_id", po.ID),
		zap.String("po_number", po.PONumber),
	)
	s.notifier.Notify(ctx, tenantID, models.EventPOCreated, po)
	return po, nil
}

func validatePurchaseOrderRequest(req *CreatePurchaseOrderRequest) error {
	if req == nil || req.SupplierID == "" {
		return apperr.Validation("supplier is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("purchase order must contain at least one item")
	}
	for i, item := range req.Items {
		if item.ProductID == "" || item.VariantSKU == "" {
			return apperr.Validation("item %d: product and variant are required", i+1)
		}
		if item.OrderedQuantity < 1 {
			return apperr.Validation("item %d: ordered quantity must be at least 1", i+1)
		}
		if item.Price.IsNegative() {
			return apperr.Validation("item %d: price must not be negative", i+1)
		}
	}
	return nil
}

func ensureVariant(ctx context.Context, repos store.Repositories, tenantID, productID, sku string) error {
	product, err := repos.Products().GetByID(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	if product.FindVariant(sku) == nil {
		return apperr.NotFound("variant %s not found on product %s", sku, productID)
	}
	return nil
}

func purchaseOrderTotal(items []models.PurchaseOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.OrderedQuantity))))
	}
	return total
}

// nextPOStatus lists the only status each externally driven step may move to
var nextPOStatus = map[string]string{
	models.POStatusDraft: models.POStatusSent,
	models.POStatusSent:  models.POStatusConfirmed,
}

// UpdateStatus moves a purchase order one step along DRAFT, SENT, CONFIRMED.
// RECEIVED is reached only by receiving every item.
func (s *PurchaseOrderService) UpdateStatus(ctx context.Context, tenantID, poID, status string) (*models.PurchaseOrder, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseOrderService.UpdateStatus")
	defer span.End()

	switch status {
	case models.POStatusDraft, models.POStatusSent, models.POStatusConfirmed:
	case models.POStatusReceived:
		return nil, apperr.InvalidTransition("RECEIVED is set by receiving items")
	default:
		return nil, apperr.Validation("unknown purchase order status: %s", status)
	}

	var po *models.PurchaseOrder
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.PurchaseOrders().GetByID(ctx, tenantID, poID)
		if err != nil {
			return err
		}
		if nextPOStatus[current.Status] != status {
			return apperr.InvalidTransition("cannot move purchase order %s from %s to %s",
				current.PONumber, current.Status, status)
		}

		current.Status = status
		current.UpdatedAt = now()
		if err := repos.PurchaseOrders().Update(ctx, current); err != nil {
			return err
		}
		po = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Purchase order status updated",
		zap.String("tenant_id", tenantID),
		zap.String("po_id", poID),
		zap.String("status", status),
	)
	s.notifier.Notify(ctx, tenantID, models.EventPOUpdated, po)
	return po, nil
}

// ReceiveItems records delivered quantities, absorbs price variance and
// returns the received stock to the ledger. The purchase order becomes
// RECEIVED once every line is complete.
func (s *PurchaseOrderService) ReceiveItems(ctx context.Context, tenantID, poID, actorID string, received []ReceiveItemRequest) (*models.PurchaseOrder, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseOrderService.ReceiveItems")
	defer span.End()

	if len(received) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	for _, r := range received {
		if r.Price != nil && r.Price.IsNegative() {
			return nil, apperr.Validation("price for %s must not be negative", r.VariantSKU)
		}
	}

	var (
		po  *models.PurchaseOrder
		out outbox
	)
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		out.reset()

		current, err := repos.PurchaseOrders().GetByID(ctx, tenantID, poID)
		if err != nil {
			return err
		}
		switch current.Status {
		case models.POStatusSent, models.POStatusConfirmed:
		default:
			return apperr.InvalidTransition("cannot receive items on %s purchase order %s",
				current.Status, current.PONumber)
		}

		for _, r := range received {
			if err := applyReceipt(current, r); err != nil {
				return err
			}
		}

		if current.FullyReceived() {
			delivered := now()
			current.Status = models.POStatusReceived
			current.ActualDeliveryDate = &delivered
		}
		current.TotalAmount = purchaseOrderTotal(current.Items)
		current.UpdatedAt = now()

		if err := repos.PurchaseOrders().Update(ctx, current); err != nil {
			return err
		}

		reference := fmt.Sprintf("PO %s", current.PONumber)
		for _, r := range received {
			level, err := repos.Ledger().Release(ctx, tenantID, r.ProductID, r.VariantSKU, r.Quantity)
			if err != nil {
				return err
			}
			movement, err := s.movements.Record(ctx, repos, MovementEntry{
				TenantID:  tenantID,
				ProductID: r.ProductID,
				SKU:       r.VariantSKU,
				Type:      models.MovementPurchase,
				Quantity:  r.Quantity,
				ActorID:   actorID,
				Reference: reference,
			})
			if err != nil {
				return err
			}
			out.add(models.EventStockMovement, movementEvent(movement, level.ProductName))
		}

		po = current
		return nil
	})
	if err != nil {
		s.logger.Warn("Purchase order receipt failed",
			zap.String("tenant_id", tenantID),
			zap.String("po_id", poID),
			zap.Error(err),
		)
		return nil, err
	}

	if po.Status == models.POStatusReceived {
		util.PurchaseOrdersReceivedTotal.Inc()
	}
	s.logger.Info("Purchase order items received",
		zap.String("tenant_id", tenantID),
		zap.String("po_id", poID),
		zap.String("status", po.Status),
	)

	out.add(models.EventPOUpdated, po)
	out.flush(ctx, s.notifier, tenantID)
	return po, nil
}

// applyReceipt updates the matching line in memory; nothing is persisted
// when any line is rejected.
func applyReceipt(po *models.PurchaseOrder, r ReceiveItemRequest) error {
	if r.Quantity <= 0 {
		return apperr.InvalidTransition("received quantity for %s must be positive", r.VariantSKU)
	}

	for i := range po.Items {
		item := &po.Items[i]
		if item.ProductID != r.ProductID || item.VariantSKU != r.VariantSKU {
			continue
		}
		if r.Quantity > item.Remaining() {
			return apperr.InvalidTransition("cannot receive more than ordered quantity for %s", r.VariantSKU)
		}
		if r.Price != nil && !r.Price.Equal(item.Price) {
			item.Price = *r.Price
		}
		item.ReceivedQuantity += r.Quantity
		return nil
	}

	return apperr.NotFound("item %s not found in purchase order %s", r.VariantSKU, po.PONumber)
}

// GetPurchaseOrder retrieves a purchase order by ID
func (s *PurchaseOrderService) GetPurchaseOrder(ctx context.Context, tenantID, poID string) (*models.PurchaseOrder, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseOrderService.GetPurchaseOrder")
	defer span.End()

	return s.repos.PurchaseOrders().GetByID(ctx, tenantID, poID)
}

// ListPurchaseOrders returns a page of purchase orders, optionally filtered by status
func (s *PurchaseOrderService) ListPurchaseOrders(ctx context.Context, tenantID, status string, page models.Page) (*PurchaseOrderList, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseOrderService.ListPurchaseOrders")
	defer span.End()

	pos, total, err := s.repos.PurchaseOrders().List(ctx, tenantID, status, page)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = []models.PurchaseOrder{}
	}
	return &PurchaseOrderList{PurchaseOrders: pos, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// PendingQuantities returns the quantity still expected per variant
func (s *PurchaseOrderService) PendingQuantities(ctx context.Context, tenantID string) (map[models.VariantKey]int, error) {
	return s.repos.PurchaseOrders().PendingQuantities(ctx, tenantID)
}
