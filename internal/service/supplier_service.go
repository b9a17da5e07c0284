package service

import (
	"context"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"
	"stockd/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	maxRating = decimal.NewFromInt(5)
	validate  = validator.New()
)

// SupplierService manages the suppliers purchase orders are placed with
type SupplierService struct {
	repos  store.Repositories
	logger *zap.Logger
}

// NewSupplierService creates a new supplier service
func NewSupplierService(repos store.Repositories) *SupplierService {
	return &SupplierService{
		repos:  repos,
		logger: util.GetLogger(),
	}
}

// SupplierRequest carries the editable fields of a supplier. Updates
// replace every field.
type SupplierRequest struct {
	Name          string                 `json:"name" binding:"required"`
	ContactPerson string                 `json:"contact_person"`
	Email         string                 `json:"email" binding:"required,email"`
	Phone         string                 `json:"phone" binding:"required"`
	Address       string                 `json:"address"`
	PaymentTerms  string                 `json:"payment_terms"`
	Rating        *decimal.Decimal       `json:"rating,omitempty"`
	Pricing       []SupplierPriceRequest `json:"pricing" binding:"dive"`
}

// SupplierPriceRequest is one entry of a supplier's price list
type SupplierPriceRequest struct {
	ProductID  string          `json:"product_id" binding:"required"`
	VariantSKU string          `json:"variant_sku" binding:"required"`
	Price      decimal.Decimal `json:"price"`
}

// SupplierList is a page of suppliers
type SupplierList struct {
	Suppliers []models.Supplier `json:"suppliers"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// CreateSupplier registers a supplier for the tenant
func (s *SupplierService) CreateSupplier(ctx context.Context, tenantID string, req *SupplierRequest) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierService.CreateSupplier")
	defer span.End()

	if err := validateSupplierRequest(req); err != nil {
		return nil, err
	}

	ts := now()
	supplier := &models.Supplier{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: ts,
	}
	applySupplierRequest(supplier, req, ts)

	if err := s.repos.Suppliers().Create(ctx, supplier); err != nil {
		return nil, err
	}

	s.logger.Info("Supplier created",
		zap.String("tenant_id", tenantID),
		zap.String("supplier_id", supplier.ID),
	)
	return supplier, nil
}

// GetSupplier retrieves a supplier by ID
func (s *SupplierService) GetSupplier(ctx context.Context, tenantID, supplierID string) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierService.GetSupplier")
	defer span.End()

	return s.repos.Suppliers().GetByID(ctx, tenantID, supplierID)
}

// ListSuppliers returns a page of suppliers whose name contains search
func (s *SupplierService) ListSuppliers(ctx context.Context, tenantID, search string, page models.Page) (*SupplierList, error) {
	ctx, span := util.StartSpan(ctx, "SupplierService.ListSuppliers")
	defer span.End()

	suppliers, total, err := s.repos.Suppliers().List(ctx, tenantID, search, page)
	if err != nil {
		return nil, err
	}
	if suppliers == nil {
		suppliers = []models.Supplier{}
	}
	return &SupplierList{Suppliers: suppliers, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// UpdateSupplier replaces the editable fields of a supplier
func (s *SupplierService) UpdateSupplier(ctx context.Context, tenantID, supplierID string, req *SupplierRequest) (*models.Supplier, error) {
	ctx, span := util.StartSpan(ctx, "SupplierService.UpdateSupplier")
	defer span.End()

	if err := validateSupplierRequest(req); err != nil {
		return nil, err
	}

	supplier, err := s.repos.Suppliers().GetByID(ctx, tenantID, supplierID)
	if err != nil {
		return nil, err
	}
	applySupplierRequest(supplier, req, now())

	if err := s.repos.Suppliers().Update(ctx, supplier); err != nil {
		return nil, err
	}

	s.logger.Info("Supplier updated",
		zap.String("tenant_id", tenantID),
		zap.String("supplier_id", supplierID),
	)
	return supplier, nil
}

// DeleteSupplier removes a supplier. Purchase orders keep its id.
func (s *SupplierService) DeleteSupplier(ctx context.Context, tenantID, supplierID string) error {
	ctx, span := util.StartSpan(ctx, "SupplierService.DeleteSupplier")
	defer span.End()

	if err := s.repos.Suppliers().Delete(ctx, tenantID, supplierID); err != nil {
		return err
	}

	s.logger.Info("Supplier deleted",
		zap.String("tenant_id", tenantID),
		zap.String("supplier_id", supplierID),
	)
	return nil
}

func applySupplierRequest(supplier *models.Supplier, req *SupplierRequest, ts time.Time) {
	supplier.Name = req.Name
	supplier.ContactPerson = req.ContactPerson
	supplier.Email = req.Email
	supplier.Phone = req.Phone
	supplier.Address = req.Address
	supplier.PaymentTerms = req.PaymentTerms
	supplier.Rating = decimal.NullDecimal{}
	if req.Rating != nil {
		supplier.Rating = decimal.NewNullDecimal(*req.Rating)
	}

	pricing := make(models.SupplierPricing, len(req.Pricing))
	for i, p := range req.Pricing {
		pricing[i] = models.SupplierPrice{
			ProductID:  p.ProductID,
			VariantSKU: p.VariantSKU,
			Price:      p.Price,
			UpdatedAt:  ts,
		}
	}
	supplier.Pricing = pricing
	supplier.UpdatedAt = ts
}

func validateSupplierRequest(req *SupplierRequest) error {
	if req == nil || req.Name == "" {
		return apperr.Validation("supplier name is required")
	}
	if req.Phone == "" {
		return apperr.Validation("supplier phone is required")
	}
	if err := validate.Var(req.Email, "required,email"); err != nil {
		return apperr.Validation("supplier email is invalid")
	}
	if req.Rating != nil && (req.Rating.IsNegative() || req.Rating.GreaterThan(maxRating)) {
		return apperr.Validation("rating must be between 0 and 5")
	}
	for i, p := range req.Pricing {
		if p.ProductID == "" || p.VariantSKU == "" {
			return apperr.Validation("price %d: product and variant are required", i+1)
		}
		if p.Price.IsNegative() {
			return apperr.Validation("price %d: price must not be negative", i+1)
		}
	}
	return nil
}
