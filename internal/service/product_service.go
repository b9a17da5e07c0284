package service

import (
	"context"
	"sort"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService manages the catalog and manual stock adjustments
type ProductService struct {
	runner    Runner
	repos     store.Repositories
	movements *MovementRecorder
	notifier  Notifier
	logger    *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(runner Runner, repos store.Repositories, movements *MovementRecorder, notifier Notifier) *ProductService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ProductService{
		runner:    runner,
		repos:     repos,
		movements: movements,
		notifier:  notifier,
		logger:    util.GetLogger(),
	}
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name              string           `json:"name" binding:"required"`
	Description       string           `json:"description"`
	Category          string           `json:"category"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
	Variants          []VariantRequest `json:"variants" binding:"required,min=1,dive"`
}

// VariantRequest represents one variant of a new product
type VariantRequest struct {
	SKU        string            `json:"sku" binding:"required"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Price      decimal.Decimal   `json:"price"`
	Stock      int               `json:"stock" binding:"min=0"`
}

// AdjustStockRequest applies a signed correction to a variant's stock
type AdjustStockRequest struct {
	VariantSKU string `json:"variant_sku" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	Notes      string `json:"notes"`
}

// ProductList is a page of products
type ProductList struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// CreateProduct creates a product with its initial stock
func (s *ProductService) CreateProduct(ctx context.Context, tenantID string, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if err := validateProductRequest(req); err != nil {
		return nil, err
	}

	threshold := models.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		threshold = *req.LowStockThreshold
	}

	variants := make([]models.Variant, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = models.Variant{
			SKU:        v.SKU,
			Attributes: models.Attributes(v.Attributes),
			Price:      v.Price,
			Stock:      v.Stock,
		}
	}

	ts := now()
	product := &models.Product{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		LowStockThreshold: threshold,
		Variants:          variants,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}

	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		return repos.Products().Create(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", product.ID),
		zap.Int("variants", len(product.Variants)),
	)
	return product, nil
}

func validateProductRequest(req *CreateProductRequest) error {
	if req == nil || req.Name == "" {
		return apperr.Validation("product name is required")
	}
	if len(req.Variants) == 0 {
		return apperr.Validation("product must have at least one variant")
	}
	if req.LowStockThreshold != nil && *req.LowStockThreshold < 0 {
		return apperr.Validation("low stock threshold must not be negative")
	}

	seen := make(map[string]bool, len(req.Variants))
	for _, v := range req.Variants {
		if v.SKU == "" {
			return apperr.Validation("variant sku is required")
		}
		if seen[v.SKU] {
			return apperr.Validation("duplicate sku %s", v.SKU)
		}
		seen[v.SKU] = true
		if v.Price.IsNegative() {
			return apperr.Validation("price of %s must not be negative", v.SKU)
		}
		if v.Stock < 0 {
			return apperr.Validation("stock of %s must not be negative", v.SKU)
		}
	}
	return nil
}

// GetProduct retrieves a product by ID
func (s *ProductService) GetProduct(ctx context.Context, tenantID, productID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	return s.repos.Products().GetByID(ctx, tenantID, productID)
}

// ListProducts returns a page of products, optionally filtered by category
func (s *ProductService) ListProducts(ctx context.Context, tenantID, category string, page models.Page) (*ProductList, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	products, total, err := s.repos.Products().List(ctx, tenantID, category, page)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return &ProductList{Products: products, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// LowStockProducts reports variants below their threshold even after
// counting what outstanding purchase orders will deliver.
func (s *ProductService) LowStockProducts(ctx context.Context, tenantID string) ([]models.LowStockItem, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.LowStockProducts")
	defer span.End()

	products, err := s.repos.Products().ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repos.PurchaseOrders().PendingQuantities(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return lowStockReport(products, pending), nil
}

func lowStockReport(products []models.Product, pending map[models.VariantKey]int) []models.LowStockItem {
	items := []models.LowStockItem{}
	for _, p := range products {
		for _, v := range p.Variants {
			if v.Stock >= p.LowStockThreshold {
				continue
			}
			incoming := pending[models.VariantKey{ProductID: p.ID, SKU: v.SKU}]
			effective := v.Stock + incoming
			if effective >= p.LowStockThreshold {
				continue
			}
			items = append(items, models.LowStockItem{
				ProductID:      p.ID,
				ProductName:    p.Name,
				SKU:            v.SKU,
				Attributes:     v.Attributes,
				CurrentStock:   v.Stock,
				PendingPO:      incoming,
				EffectiveStock: effective,
				Threshold:      p.LowStockThreshold,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EffectiveStock < items[j].EffectiveStock
	})
	return items
}

// AdjustStock applies a manual correction through the ledger and records
// an ADJUSTMENT movement. Negative corrections never take stock below zero.
func (s *ProductService) AdjustStock(ctx context.Context, tenantID, actorID, productID string, req *AdjustStockRequest) (*models.StockLevel, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.AdjustStock")
	defer span.End()

	if req == nil || req.VariantSKU == "" {
		return nil, apperr.Validation("variant sku is required")
	}
	if req.Quantity == 0 {
		return nil, apperr.Validation("adjustment quantity must not be zero")
	}

	var (
		level *models.StockLevel
		out   outbox
	)
	err := s.runner.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		out.reset()

		var err error
		if req.Quantity < 0 {
			level, err = repos.Ledger().Reserve(ctx, tenantID, productID, req.VariantSKU, -req.Quantity)
		} else {
			level, err = repos.Ledger().Release(ctx, tenantID, productID, req.VariantSKU, req.Quantity)
		}
		if err != nil {
			return err
		}

		movement, err := s.movements.Record(ctx, repos, MovementEntry{
			TenantID:  tenantID,
			ProductID: productID,
			SKU:       req.VariantSKU,
			Type:      models.MovementAdjustment,
			Quantity:  req.Quantity,
			ActorID:   actorID,
			Reference: "Manual adjustment",
			Notes:     req.Notes,
		})
		if err != nil {
			return err
		}
		out.add(models.EventStockMovement, movementEvent(movement, level.ProductName))
		return nil
	})
	if err != nil {
		return nil, err
	}

	alerts, err := lowStockEvents(ctx, s.repos, tenantID, []*models.StockLevel{level})
	if err != nil {
		s.logger.Warn("Low stock check failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	queueLowStock(&out, alerts)

	s.logger.Info("Stock adjusted",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", productID),
		zap.String("sku", req.VariantSKU),
		zap.Int("quantity", req.Quantity),
		zap.Int("stock", level.Stock),
	)
	out.flush(ctx, s.notifier, tenantID)
	return level, nil
}
