package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Supplier is a vendor that purchase orders are placed with
type Supplier struct {
	ID            string              `db:"id" json:"id"`
	TenantID      string              `db:"tenant_id" json:"tenant_id"`
	Name          string              `db:"name" json:"name"`
	ContactPerson string              `db:"contact_person" json:"contact_person,omitempty"`
	Email         string              `db:"email" json:"email"`
	Phone         string              `db:"phone" json:"phone"`
	Address       string              `db:"address" json:"address,omitempty"`
	PaymentTerms  string              `db:"payment_terms" json:"payment_terms,omitempty"`
	Rating        decimal.NullDecimal `db:"rating" json:"rating"`
	Pricing       SupplierPricing     `db:"pricing" json:"pricing"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// SupplierPrice is what a supplier charges for one variant
type SupplierPrice struct {
	ProductID  string          `json:"product_id"`
	VariantSKU string          `json:"variant_sku"`
	Price      decimal.Decimal `json:"price"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SupplierPricing is a supplier's price list. Stored as jsonb.
type SupplierPricing []SupplierPrice

// Value implements driver.Valuer
func (p SupplierPricing) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *SupplierPricing) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported pricing type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// DashboardStats summarizes a tenant's inventory
type DashboardStats struct {
	InventoryValue decimal.Decimal `json:"inventory_value"`
	LowStockCount  int             `json:"low_stock_count"`
	TotalProducts  int             `json:"total_products"`
	PendingPOCount int             `json:"pending_po_count"`
}

// TopSeller aggregates the sold quantity and revenue of one product
type TopSeller struct {
	ProductID     string          `db:"product_id" json:"product_id"`
	ProductName   string          `db:"product_name" json:"product_name"`
	TotalQuantity int             `db:"total_quantity" json:"total_quantity"`
	TotalRevenue  decimal.Decimal `db:"total_revenue" json:"total_revenue"`
}
