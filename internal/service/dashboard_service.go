package service

import (
	"context"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/util"

	"github.com/shopspring/decimal"
)

const (
	DefaultTopSellerDays  = 30
	DefaultTopSellerLimit = 5
	maxReportDays         = 365
)

// DashboardService aggregates tenant-wide inventory figures
type DashboardService struct {
	repos store.Repositories
}

func NewDashboardService(repos store.Repositories) *DashboardService {
	return &DashboardService{repos: repos}
}

// Stats reports inventory value, the size of the low stock report, the
// number of products and the purchase orders still awaiting delivery.
func (s *DashboardService) Stats(ctx context.Context, tenantID string) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.Stats")
	defer span.End()

	products, err := s.repos.Products().ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repos.PurchaseOrders().PendingQuantities(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	openPOs, err := s.repos.PurchaseOrders().CountOpen(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	value := decimal.Zero
	for _, p := range products {
		for _, v := range p.Variants {
			value = value.Add(v.Price.Mul(decimal.NewFromInt(int64(v.Stock))))
		}
	}

	return &models.DashboardStats{
		InventoryValue: value.Round(2),
		LowStockCount:  len(lowStockReport(products, pending)),
		TotalProducts:  len(products),
		PendingPOCount: openPOs,
	}, nil
}

// TopSellers ranks products by quantity sold on live orders of the last days
func (s *DashboardService) TopSellers(ctx context.Context, tenantID string, days, limit int) ([]models.TopSeller, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.TopSellers")
	defer span.End()

	if days < 1 || days > maxReportDays {
		return nil, apperr.Validation("days must be between 1 and %d", maxReportDays)
	}
	if limit < 1 || limit > 100 {
		return nil, apperr.Validation("limit must be between 1 and 100")
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	sellers, err := s.repos.Orders().TopSellers(ctx, tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	if sellers == nil {
		sellers = []models.TopSeller{}
	}
	return sellers, nil
}
