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

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shirts := env.seedProduct(t, tenantA, 10, "2.50", 3, "A", "B", "C")
	env.seedProduct(t, tenantA, 1, "1", 20, "A")
	env.seedProduct(t, tenantB, 1, "100", 100, "A")

	po, err := env.pos.CreatePurchaseOrder(ctx, tenantA, actor, &CreatePurchaseOrderRequest{
		SupplierID: env.seedSupplier(t, tenantA),
		Items:      []PurchaseOrderItemRequest{{ProductID: shirts.ID, VariantSKU: "B", OrderedQuantity: 10, Price: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	stats, err := env.dashboard.Stats(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.LowStockCount, "a DRAFT purchase order does not replenish")
	assert.Equal(t, 0, stats.PendingPOCount)

	_, err = env.pos.UpdateStatus(ctx, tenantA, po.ID, models.POStatusSent)
	require.NoError(t, err)

	stats, err = env.dashboard.Stats(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("42.50").Equal(stats.InventoryValue), "got %s", stats.InventoryValue)
	assert.Equal(t, 2, stats.LowStockCount)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.PendingPOCount)
}

func TestDashboardTopSellers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shirts := env.seedProduct(t, tenantA, 1, "10", 10, "A", "B")
	mugs := env.seedProduct(t, tenantA, 1, "1", 10, "A")

	order := func(productID, sku string, quantity int) *models.Order {
		o, err := env.orders.CreateOrder(ctx, tenantA, actor, &CreateOrderRequest{
			Items: []OrderItemRequest{{ProductID: productID, VariantSKU: sku, Quantity: quantity}},
		})
		require.NoError(t, err)
		return o
	}
	order(mugs.ID, "A", 5)
	order(shirts.ID, "A", 2)
	cancelled := order(shirts.ID, "B", 4)
	_, err := env.orders.CancelOrder(ctx, tenantA, cancelled.ID, actor)
	require.NoError(t, err)

	sellers, err := env.dashboard.TopSellers(ctx, tenantA, DefaultTopSellerDays, DefaultTopSellerLimit)
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	assert.Equal(t, mugs.ID, sellers[0].ProductID)
	assert.Equal(t, 5, sellers[0].TotalQuantity)
	assert.True(t, decimal.NewFromInt(5).Equal(sellers[0].TotalRevenue))
	assert.Equal(t, shirts.ID, sellers[1].ProductID)
	assert.Equal(t, 2, sellers[1].TotalQuantity, "cancelled orders are not sales")
	assert.Equal(t, "T-Shirt", sellers[1].ProductName)

	top, err := env.dashboard.TopSellers(ctx, tenantA, 7, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, mugs.ID, top[0].ProductID)

	none, err := env.dashboard.TopSellers(ctx, tenantB, 7, 5)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = env.dashboard.TopSellers(ctx, tenantA, 0, 5)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = env.dashboard.TopSellers(ctx, tenantA, 400, 5)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = env.dashboard.TopSellers(ctx, tenantA, 7, 101)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
