package service

import (
	"context"
	"errors"
	"testing"

	"stockd/internal/apperr"
	"stockd/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduct_DefaultsThreshold(t *testing.T) {
	env := newTestEnv(t)

	product, err := env.products.CreateProduct(context.Background(), tenantA, &CreateProductRequest{
		Name:     "Mug",
		Variants: []VariantRequest{{SKU: "MUG-1", Price: decimal.NewFromInt(4), Stock: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLowStockThreshold, product.LowStockThreshold)

	stored, err := env.products.GetProduct(context.Background(), tenantA, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Variants[0].Stock)

	_, err = env.products.GetProduct(context.Background(), tenantB, product.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateProduct_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *CreateProductRequest
	}{
		{"missing name", &CreateProductRequest{Variants: []VariantRequest{{SKU: "A"}}}},
		{"no variants", &CreateProductRequest{Name: "Mug"}},
		{"duplicate sku", &CreateProductRequest{Name: "Mug", Variants: []VariantRequest{{SKU: "A"}, {SKU: "A"}}}},
		{"negative stock", &CreateProductRequest{Name: "Mug", Variants: []VariantRequest{{SKU: "A", Stock: -1}}}},
		{"negative price", &CreateProductRequest{Name: "Mug", Variants: []VariantRequest{{SKU: "A", Price: decimal.NewFromInt(-1)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.products.CreateProduct(context.Background(), tenantA, tt.req)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestAdjustStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, tenantA, 5, "10", 6, "A")

	level, err := env.products.AdjustStock(ctx, tenantA, actor, product.ID, &AdjustStockRequest{VariantSKU: "A", Quantity: -2, Notes: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, 4, level.Stock)
	assert.Equal(t, []string{models.EventStockMovement, models.EventLowStock}, env.notifier.names())

	level, err = env.products.AdjustStock(ctx, tenantA, actor, product.ID, &AdjustStockRequest{VariantSKU: "A", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, level.Stock)

	_, err = env.products.AdjustStock(ctx, tenantA, actor, product.ID, &AdjustStockRequest{VariantSKU: "A", Quantity: -8})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock), "stock never goes below zero")
	assert.Equal(t, 7, env.stock(t, product.ID, "A"))

	movements := env.movementsOf(t, tenantA)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementAdjustment, movements[1].Type)
	assert.Equal(t, -2, movements[1].Quantity)
	assert.Equal(t, "damaged", movements[1].Notes)
}

func TestLowStockProducts_AccountsForPendingPurchaseOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, tenantA, 10, "10", 3, "A", "B", "C")

	po, err := env.pos.CreatePurchaseOrder(ctx, tenantA, actor, &CreatePurchaseOrderRequest{
		SupplierID: env.seedSupplier(t, tenantA),
		Items: []PurchaseOrderItemRequest{
			{ProductID: product.ID, VariantSKU: "B", OrderedQuantity: 10, Price: decimal.NewFromInt(1)},
			{ProductID: product.ID, VariantSKU: "C", OrderedQuantity: 2, Price: decimal.NewFromInt(1)},
		},
	})
	require.NoError(t, err)
	_, err = env.pos.UpdateStatus(ctx, tenantA, po.ID, models.POStatusSent)
	require.NoError(t, err)

	items, err := env.products.LowStockProducts(ctx, tenantA)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "A", items[0].SKU)
	assert.Equal(t, 3, items[0].EffectiveStock)
	assert.Equal(t, "C", items[1].SKU)
	assert.Equal(t, 2, items[1].PendingPO)
	assert.Equal(t, 5, items[1].EffectiveStock)
}

func TestMovementRecorder_ValidatesSign(t *testing.T) {
	env := newTestEnv(t)
	repos := env.store.Repositories()
	ctx := context.Background()

	base := MovementEntry{TenantID: tenantA, ProductID: "p", SKU: "A", ActorID: actor}

	sale := base
	sale.Type, sale.Quantity = models.MovementSale, 3
	_, err := env.movements.Record(ctx, repos, sale)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	purchase := base
	purchase.Type, purchase.Quantity = models.MovementPurchase, -3
	_, err = env.movements.Record(ctx, repos, purchase)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	unknown := base
	unknown.Type, unknown.Quantity = "TRANSFER", 1
	_, err = env.movements.Record(ctx, repos, unknown)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	adjustment := base
	adjustment.Type, adjustment.Quantity = models.MovementAdjustment, -1
	m, err := env.movements.Record(ctx, repos, adjustment)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
}

func TestMovementStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, tenantA, 1, "10", 10, "A")

	_, err := env.orders.CreateOrder(ctx, tenantA, actor, &CreateOrderRequest{
		Items: []OrderItemRequest{{ProductID: product.ID, VariantSKU: "A", Quantity: 4}},
	})
	require.NoError(t, err)
	_, err = env.products.AdjustStock(ctx, tenantA, actor, product.ID, &AdjustStockRequest{VariantSKU: "A", Quantity: 2})
	require.NoError(t, err)

	stats, err := env.movements.MovementStats(ctx, tenantA, 7)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].In)
	assert.Equal(t, 4, stats[0].Out)

	history, err := env.movements.ProductMovements(ctx, tenantA, product.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = env.movements.ProductMovements(ctx, tenantB, product.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
