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
	"go.uber.org/zap"
)

// MovementEntry describes one stock change to be recorded
type MovementEntry struct {
	TenantID  string
	ProductID string
	SKU       string
	Type      string
	Quantity  int
	ActorID   string
	Reference string
	Notes     string
}

// MovementRecorder appends stock movements and serves the audit trail
type MovementRecorder struct {
	repos  store.Repositories
	logger *zap.Logger
}

// NewMovementRecorder creates a movement recorder reading from repos
func NewMovementRecorder(repos store.Repositories) *MovementRecorder {
	return &MovementRecorder{
		repos:  repos,
		logger: util.GetLogger(),
	}
}

// Record appends one movement through repos, which may be bound to a transaction
func (r *MovementRecorder) Record(ctx context.Context, repos store.Repositories, entry MovementEntry) (*models.StockMovement, error) {
	if err := validateMovement(entry); err != nil {
		return nil, err
	}

	movement := &models.StockMovement{
		ID:         uuid.New().String(),
		TenantID:   entry.TenantID,
		ProductID:  entry.ProductID,
		VariantSKU: entry.SKU,
		Type:       entry.Type,
		Quantity:   entry.Quantity,
		UserID:     entry.ActorID,
		Reference:  entry.Reference,
		Notes:      entry.Notes,
		CreatedAt:  now(),
	}

	if err := repos.Movements().Create(ctx, movement); err != nil {
		return nil, fmt.Errorf("failed to record %s movement: %w", entry.Type, err)
	}

	util.StockMovementsTotal.WithLabelValues(entry.Type).Inc()
	r.logger.Debug("Stock movement recorded",
		zap.String("tenant_id", entry.TenantID),
		zap.String("product_id", entry.ProductID),
		zap.String("sku", entry.SKU),
		zap.String("type", entry.Type),
		zap.Int("quantity", entry.Quantity),
	)
	return movement, nil
}

func validateMovement(entry MovementEntry) error {
	if entry.TenantID == "" || entry.ProductID == "" || entry.SKU == "" {
		return apperr.Validation("movement requires tenant, product and sku")
	}
	if entry.Quantity == 0 {
		return apperr.Validation("movement quantity must not be zero")
	}

	switch entry.Type {
	case models.MovementSale:
		if entry.Quantity > 0 {
			return apperr.Validation("SALE movements must be negative")
		}
	case models.MovementPurchase, models.MovementReturn:
		if entry.Quantity < 0 {
			return apperr.Validation("%s movements must be positive", entry.Type)
		}
	case models.MovementAdjustment:
	default:
		return apperr.Validation("unknown movement type: %s", entry.Type)
	}
	return nil
}

// MovementList is a page of movements
type MovementList struct {
	Movements []models.StockMovement `json:"movements"`
	Total     int                    `json:"total"`
	Page      int                    `json:"page"`
	Limit     int                    `json:"limit"`
}

// ListMovements returns a page of a tenant's movements, newest first
func (r *MovementRecorder) ListMovements(ctx context.Context, tenantID, movementType string, page models.Page) (*MovementList, error) {
	ctx, span := util.StartSpan(ctx, "MovementRecorder.ListMovements")
	defer span.End()

	movements, total, err := r.repos.Movements().List(ctx, tenantID, movementType, page)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []models.StockMovement{}
	}
	return &MovementList{Movements: movements, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// ProductMovements returns every movement of one product
func (r *MovementRecorder) ProductMovements(ctx context.Context, tenantID, productID string) ([]models.StockMovement, error) {
	ctx, span := util.StartSpan(ctx, "MovementRecorder.ProductMovements")
	defer span.End()

	if _, err := r.repos.Products().GetByID(ctx, tenantID, productID); err != nil {
		return nil, err
	}

	movements, err := r.repos.Movements().ListByProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []models.StockMovement{}
	}
	return movements, nil
}

// MovementStats returns daily inbound and outbound totals for the last days
func (r *MovementRecorder) MovementStats(ctx context.Context, tenantID string, days int) ([]models.MovementDay, error) {
	ctx, span := util.StartSpan(ctx, "MovementRecorder.MovementStats")
	defer span.End()

	if days <= 0 {
		days = 7
	}
	since := now().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	stats, err := r.repos.Movements().DailyTotals(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []models.MovementDay{}
	}
	return stats, nil
}
