package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry owned by a tenant
type Product struct {
	ID                string    `db:"id" json:"id"`
	TenantID          string    `db:"tenant_id" json:"tenant_id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description,omitempty"`
	Category          string    `db:"category" json:"category,omitempty"`
	LowStockThreshold int       `db:"low_stock_threshold" json:"low_stock_threshold"`
	Variants          []Variant `db:"-" json:"variants"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Variant represents a SKU-level configuration of a product.
// Stock is only ever changed through the stock ledger.
type Variant struct {
	ProductID  string          `db:"product_id" json:"-"`
	SKU        string          `db:"sku" json:"sku"`
	Attributes Attributes      `db:"attributes" json:"attributes,omitempty"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Stock      int             `db:"stock" json:"stock"`
}

// FindVariant returns the variant with the given SKU, or nil
func (p *Product) FindVariant(sku string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	return nil
}

// StockLevel is the state of a variant right after a ledger update
type StockLevel struct {
	ProductID         string `db:"product_id" json:"product_id"`
	ProductName       string `db:"product_name" json:"product_name"`
	SKU               string `db:"sku" json:"variant_sku"`
	Stock             int    `db:"stock" json:"current_stock"`
	LowStockThreshold int    `db:"low_stock_threshold" json:"threshold"`
}

// Order represents a sales order
type Order struct {
	ID            string          `db:"id" json:"id"`
	TenantID      string          `db:"tenant_id" json:"tenant_id"`
	OrderNumber   string          `db:"order_number" json:"order_number"`
	Status        string          `db:"status" json:"status"`
	Items         []OrderItem     `db:"-" json:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	CustomerName  string          `db:"customer_name" json:"customer_name,omitempty"`
	CustomerEmail string          `db:"customer_email" json:"customer_email,omitempty"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	Version       int             `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line of an order
type OrderItem struct {
	OrderID           string          `db:"order_id" json:"-"`
	Position          int             `db:"position" json:"-"`
	ProductID         string          `db:"product_id" json:"product_id"`
	VariantSKU        string          `db:"variant_sku" json:"variant_sku"`
	Quantity          int             `db:"quantity" json:"quantity"`
	FulfilledQuantity int             `db:"fulfilled_quantity" json:"fulfilled_quantity"`
	Price             decimal.Decimal `db:"price" json:"price"`
}

// Remaining returns the quantity still to be fulfilled
func (i OrderItem) Remaining() int {
	return i.Quantity - i.FulfilledQuantity
}

// FullyFulfilled reports whether every line reached its ordered quantity
func (o *Order) FullyFulfilled() bool {
	for _, item := range o.Items {
		if item.FulfilledQuantity != item.Quantity {
			return false
		}
	}
	return true
}

// PurchaseOrder represents a supplier purchase order
type PurchaseOrder struct {
	ID                   string              `db:"id" json:"id"`
	TenantID             string              `db:"tenant_id" json:"tenant_id"`
	SupplierID           string              `db:"supplier_id" json:"supplier_id"`
	PONumber             string              `db:"po_number" json:"po_number"`
	Status               string              `db:"status" json:"status"`
	Items                []PurchaseOrderItem `db:"-" json:"items"`
	ExpectedDeliveryDate *time.Time          `db:"expected_delivery_date" json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time          `db:"actual_delivery_date" json:"actual_delivery_date,omitempty"`
	TotalAmount          decimal.Decimal     `db:"total_amount" json:"total_amount"`
	Notes                string              `db:"notes" json:"notes,omitempty"`
	CreatedBy            string              `db:"created_by" json:"created_by"`
	Version              int                 `db:"version" json:"version"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updated_at"`
}

// PurchaseOrderItem represents a line of a purchase order
type PurchaseOrderItem struct {
	PurchaseOrderID  string          `db:"purchase_order_id" json:"-"`
	Position         int             `db:"position" json:"-"`
	ProductID        string          `db:"product_id" json:"product_id"`
	VariantSKU       string          `db:"variant_sku" json:"variant_sku"`
	OrderedQuantity  int             `db:"ordered_quantity" json:"ordered_quantity"`
	ReceivedQuantity int             `db:"received_quantity" json:"received_quantity"`
	Price            decimal.Decimal `db:"price" json:"price"`
}

// Remaining returns the quantity still expected from the supplier
func (i PurchaseOrderItem) Remaining() int {
	return i.OrderedQuantity - i.ReceivedQuantity
}

// FullyReceived reports whether every line reached its ordered quantity
func (po *PurchaseOrder) FullyReceived() bool {
	for _, item := range po.Items {
		if item.ReceivedQuantity != item.OrderedQuantity {
			return false
		}
	}
	return true
}

// StockMovement is an immutable audit record of one stock change
type StockMovement struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	VariantSKU string    `db:"variant_sku" json:"variant_sku"`
	Type       string    `db:"type" json:"type"`
	Quantity   int       `db:"quantity" json:"quantity"`
	UserID     string    `db:"user_id" json:"user_id"`
	Reference  string    `db:"reference" json:"reference,omitempty"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MovementDay aggregates inbound and outbound quantities for one day
type MovementDay struct {
	Date string `db:"day" json:"date"`
	In   int    `db:"in_qty" json:"in"`
	Out  int    `db:"out_qty" json:"out"`
}

// VariantKey addresses a variant across products
type VariantKey struct {
	ProductID string
	SKU       string
}

// LowStockItem is one row of the low stock report
type LowStockItem struct {
	ProductID      string     `json:"product_id"`
	ProductName    string     `json:"product_name"`
	SKU            string     `json:"sku"`
	Attributes     Attributes `json:"attributes,omitempty"`
	CurrentStock   int        `json:"current_stock"`
	PendingPO      int        `json:"pending_po"`
	EffectiveStock int        `json:"effective_stock"`
	Threshold      int        `json:"threshold"`
}

// Page describes a pagination window
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusFulfilled = "FULFILLED"
	OrderStatusCancelled = "CANCELLED"
)

// Purchase order statuses
const (
	POStatusDraft     = "DRAFT"
	POStatusSent      = "SENT"
	POStatusConfirmed = "CONFIRMED"
	POStatusReceived  = "RECEIVED"
)

// Movement types
const (
	MovementPurchase   = "PURCHASE"
	MovementSale       = "SALE"
	MovementReturn     = "RETURN"
	MovementAdjustment = "ADJUSTMENT"
)

// DefaultLowStockThreshold applies when a product is created without one
const DefaultLowStockThreshold = 10
