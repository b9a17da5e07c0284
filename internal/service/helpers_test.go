package service

import (
	"context"
	"sync"
	"testing"

	"stockd/internal/models"
	"stockd/internal/store/memory"
	"stockd/internal/txn"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
	actor   = "user-1"
)

type sentEvent struct {
	TenantID string
	Event    string
	Payload  interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, tenantID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{TenantID: tenantID, Event: event, Payload: payload})
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, len(n.events))
	for i, e := range n.events {
		names[i] = e.Event
	}
	return names
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type testEnv struct {
	store     *memory.Store
	notifier  *recordingNotifier
	movements *MovementRecorder
	orders    *OrderService
	pos       *PurchaseOrderService
	products  *ProductService
	suppliers *SupplierService
	dashboard *DashboardService
}

func newTestEnv(t *testing.T, opts ...memory.Option) *testEnv {
	t.Helper()
	mem := memory.New(opts...)
	return newTestEnvOn(t, mem, mem)
}

// newTestEnvOn runs units of work through backend while reads outside them
// go straight to mem
func newTestEnvOn(t *testing.T, mem *memory.Store, backend txn.Backend) *testEnv {
	t.Helper()

	coordinator, err := txn.NewCoordinator(context.Background(), backend, txn.Config{MaxRetries: 3, BackoffUnit: 1})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	movements := NewMovementRecorder(mem.Repositories())
	return &testEnv{
		store:     mem,
		notifier:  notifier,
		movements: movements,
		orders:    NewOrderService(coordinator, mem.Repositories(), movements, notifier),
		pos:       NewPurchaseOrderService(coordinator, mem.Repositories(), movements, notifier),
		products:  NewProductService(coordinator, mem.Repositories(), movements, notifier),
		suppliers: NewSupplierService(mem.Repositories()),
		dashboard: NewDashboardService(mem.Repositories()),
	}
}

// seedProduct creates a product with one variant per sku, each with the given stock
func (e *testEnv) seedProduct(t *testing.T, tenantID string, threshold int, price string, stock int, skus ...string) *models.Product {
	t.Helper()

	variants := make([]VariantRequest, len(skus))
	for i, sku := range skus {
		variants[i] = VariantRequest{
			SKU:        sku,
			Attributes: map[string]string{"size": "M"},
			Price:      decimal.RequireFromString(price),
			Stock:      stock,
		}
	}

	product, err := e.products.CreateProduct(context.Background(), tenantID, &CreateProductRequest{
		Name:              "T-Shirt",
		Category:          "apparel",
		LowStockThreshold: &threshold,
		Variants:          variants,
	})
	require.NoError(t, err)
	e.notifier.reset()
	return product
}

func (e *testEnv) seedSupplier(t *testing.T, tenantID string) string {
	t.Helper()
	supplier, err := e.suppliers.CreateSupplier(context.Background(), tenantID, &SupplierRequest{
		Name:  "Acme Textiles",
		Email: "orders@acme.test",
		Phone: "+1 555 0100",
	})
	require.NoError(t, err)
	return supplier.ID
}

func (e *testEnv) stock(t *testing.T, productID, sku string) int {
	t.Helper()
	stock, ok := e.store.Stock(productID, sku)
	require.True(t, ok, "variant %s/%s exists", productID, sku)
	return stock
}

func (e *testEnv) movementsOf(t *testing.T, tenantID string) []models.StockMovement {
	t.Helper()
	list, err := e.movements.ListMovements(context.Background(), tenantID, "", models.Page{})
	require.NoError(t, err)
	return list.Movements
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
