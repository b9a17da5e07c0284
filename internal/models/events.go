package models

import "time"

// Notification event names delivered to connected clients
const (
	EventOrderCreated  = "order_created"
	EventOrderUpdated  = "order_updated"
	EventPOCreated     = "po_created"
	EventPOUpdated     = "po_updated"
	EventStockMovement = "stock_movement"
	EventLowStock      = "low_stock"
)

// Notification is the envelope published on the notifications topic
type Notification struct {
	EventID   string      `json:"event_id"`
	Event     string      `json:"event"`
	TenantID  string      `json:"tenant_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StockMovementEvent is the payload of stock_movement
type StockMovementEvent struct {
	MovementID  string    `json:"movement_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	VariantSKU  string    `json:"variant_sku"`
	Quantity    int       `json:"quantity"`
	Type        string    `json:"type"`
	Reference   string    `json:"reference,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// LowStockEvent is the payload of low_stock
type LowStockEvent struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	VariantSKU   string `json:"variant_sku"`
	CurrentStock int    `json:"current_stock"`
	Threshold    int    `json:"threshold"`
}
