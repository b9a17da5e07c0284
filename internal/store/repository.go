package store

import (
	"context"
	"time"

	"stockd/internal/models"
)

// Repositories groups every repository bound to one execution scope.
// Inside a transaction all of them share the same transaction.
type Repositories interface {
	Ledger() Ledger
	Products() ProductRepository
	Orders() OrderRepository
	PurchaseOrders() PurchaseOrderRepository
	Movements() MovementRepository
	Sequences() SequenceRepository
	Suppliers() SupplierRepository
}

// Scope is an open transaction
type Scope interface {
	Repositories() Repositories
	Commit() error
	Rollback() error
}

// Ledger owns per-variant stock counters. Both operations are a single
// conditional update at the storage level.
type Ledger interface {
	// Reserve decrements stock only if the current stock covers quantity.
	// Returns apperr.ErrInsufficientStock when the condition fails or the
	// product/variant does not exist.
	Reserve(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error)
	// Release increments stock unconditionally.
	Release(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Product, error)
	List(ctx context.Context, tenantID, category string, page models.Page) ([]models.Product, int, error)
	ListAll(ctx context.Context, tenantID string) ([]models.Product, error)
}

// OrderRepository persists orders. Update is an optimistic write guarded by
// the order's version.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	List(ctx context.Context, tenantID, status string, page models.Page) ([]models.Order, int, error)
	// TopSellers ranks products by quantity sold on CONFIRMED and FULFILLED
	// orders created since the given time.
	TopSellers(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.TopSeller, error)
}

// PurchaseOrderRepository persists purchase orders. Update is an optimistic
// write guarded by the purchase order's version.
type PurchaseOrderRepository interface {
	Create(ctx context.Context, po *models.PurchaseOrder) error
	GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error)
	Update(ctx context.Context, po *models.PurchaseOrder) error
	List(ctx context.Context, tenantID, status string, page models.Page) ([]models.PurchaseOrder, int, error)
	// PendingQuantities sums the quantity still expected on SENT and
	// CONFIRMED purchase orders, per product variant.
	PendingQuantities(ctx context.Context, tenantID string) (map[models.VariantKey]int, error)
	// CountOpen counts SENT and CONFIRMED purchase orders
	CountOpen(ctx context.Context, tenantID string) (int, error)
}

type SupplierRepository interface {
	Create(ctx context.Context, supplier *models.Supplier) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Supplier, error)
	// List filters by a case-insensitive substring of the name and sorts by name
	List(ctx context.Context, tenantID, search string, page models.Page) ([]models.Supplier, int, error)
	Update(ctx context.Context, supplier *models.Supplier) error
	Delete(ctx context.Context, tenantID, id string) error
}

// MovementRepository is append-only
type MovementRepository interface {
	Create(ctx context.Context, movement *models.StockMovement) error
	List(ctx context.Context, tenantID, movementType string, page models.Page) ([]models.StockMovement, int, error)
	ListByProduct(ctx context.Context, tenantID, productID string) ([]models.StockMovement, error)
	DailyTotals(ctx context.Context, tenantID string, since time.Time) ([]models.MovementDay, error)
}

// SequenceRepository hands out per-tenant counters
type SequenceRepository interface {
	Next(ctx context.Context, tenantID, name string) (int64, error)
}

// Sequence names
const (
	SequenceOrders         = "orders"
	SequencePurchaseOrders = "purchase_orders"
)
