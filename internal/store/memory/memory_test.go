package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, tenantID string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:                "p-" + tenantID,
		TenantID:          tenantID,
		Name:              "Widget",
		LowStockThreshold: 3,
		Variants:          []models.Variant{{SKU: "W-1", Stock: stock}},
	}
	require.NoError(t, s.Products().Create(context.Background(), product))
	return product
}

func TestStore_WithoutTransactionsOption(t *testing.T) {
	s := New()

	ok, err := s.SupportsTransactions(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Begin(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrTransactionsUnsupported))
}

func TestStore_RollbackRestoresSnapshot(t *testing.T) {
	s := New(WithTransactions())
	ctx := context.Background()
	product := seed(t, s, "a", 5)

	ok, err := s.SupportsTransactions(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	repos := scope.Repositories()
	_, err = repos.Ledger().Reserve(ctx, "a", product.ID, "W-1", 2)
	require.NoError(t, err)
	require.NoError(t, repos.Movements().Create(ctx, &models.StockMovement{ID: "m1", TenantID: "a", ProductID: product.ID, Quantity: -2}))
	_, err = repos.Sequences().Next(ctx, "a", store.SequenceOrders)
	require.NoError(t, err)
	require.NoError(t, scope.Rollback())

	stock, _ := s.Stock(product.ID, "W-1")
	assert.Equal(t, 5, stock)
	movements, total, err := s.Movements().List(ctx, "a", "", models.Page{})
	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.Zero(t, total)
	n, err := s.Sequences().Next(ctx, "a", store.SequenceOrders)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStore_CommitKeepsWrites(t *testing.T) {
	s := New(WithTransactions())
	ctx := context.Background()
	product := seed(t, s, "a", 5)

	scope, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = scope.Repositories().Ledger().Reserve(ctx, "a", product.ID, "W-1", 2)
	require.NoError(t, err)
	require.NoError(t, scope.Commit())
	require.NoError(t, scope.Rollback(), "rollback after commit is a no-op")

	stock, _ := s.Stock(product.ID, "W-1")
	assert.Equal(t, 3, stock)
}

func TestStore_TransactionsRunOneAtATime(t *testing.T) {
	s := New(WithTransactions())
	ctx := context.Background()

	first, err := s.Begin(ctx)
	require.NoError(t, err)

	began := make(chan store.Scope)
	go func() {
		second, err := s.Begin(ctx)
		if err != nil {
			close(began)
			return
		}
		began <- second
	}()

	select {
	case <-began:
		t.Fatal("second transaction began before the first finished")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Commit())
	second, ok := <-began
	require.True(t, ok)
	require.NoError(t, second.Rollback())
}

func TestLedger_ReserveIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	product := seed(t, s, "a", 4)

	level, err := s.Ledger().Reserve(ctx, "a", product.ID, "W-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Stock)
	assert.Equal(t, 3, level.LowStockThreshold)

	_, err = s.Ledger().Reserve(ctx, "a", product.ID, "W-1", 1)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	_, err = s.Ledger().Reserve(ctx, "b", product.ID, "W-1", 0)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock), "other tenants see nothing")

	_, err = s.Ledger().Release(ctx, "b", product.ID, "W-1", 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	level, err = s.Ledger().Release(ctx, "a", product.ID, "W-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, level.Stock)
}

func TestProducts_ReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	product := seed(t, s, "a", 4)

	loaded, err := s.Products().GetByID(ctx, "a", product.ID)
	require.NoError(t, err)
	loaded.Variants[0].Stock = 100

	stock, ok := s.Stock(product.ID, "W-1")
	require.True(t, ok)
	assert.Equal(t, 4, stock)
}

func TestOrders_UpdateChecksVersion(t *testing.T) {
	s := New()
	ctx := context.Background()

	order := &models.Order{ID: "o1", TenantID: "a", OrderNumber: "ORD-000001", Status: models.OrderStatusConfirmed}
	require.NoError(t, s.Orders().Create(ctx, order))
	assert.Equal(t, 1, order.Version)

	dup := &models.Order{ID: "o2", TenantID: "a", OrderNumber: "ORD-000001"}
	assert.True(t, errors.Is(s.Orders().Create(ctx, dup), apperr.ErrTransientConflict))

	first, err := s.Orders().GetByID(ctx, "a", "o1")
	require.NoError(t, err)
	second, err := s.Orders().GetByID(ctx, "a", "o1")
	require.NoError(t, err)

	first.Status = models.OrderStatusCancelled
	require.NoError(t, s.Orders().Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = models.OrderStatusFulfilled
	assert.True(t, errors.Is(s.Orders().Update(ctx, second), apperr.ErrTransientConflict))

	stored, err := s.Orders().GetByID(ctx, "a", "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)

	_, err = s.Orders().GetByID(ctx, "b", "o1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestPurchaseOrders_PendingQuantities(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, status := range []string{models.POStatusDraft, models.POStatusSent, models.POStatusConfirmed, models.POStatusReceived} {
		po := &models.PurchaseOrder{
			ID:       string(rune('a' + i)),
			TenantID: "a",
			PONumber: "PO-00000" + string(rune('1'+i)),
			Status:   status,
			Items: []models.PurchaseOrderItem{
				{ProductID: "p", VariantSKU: "W-1", OrderedQuantity: 10, ReceivedQuantity: 4},
			},
		}
		require.NoError(t, s.PurchaseOrders().Create(ctx, po))
	}

	pending, err := s.PurchaseOrders().PendingQuantities(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[models.VariantKey]int{{ProductID: "p", SKU: "W-1"}: 12}, pending)
}

func TestMovements_ListAndDailyTotals(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	entries := []models.StockMovement{
		{ID: "m1", TenantID: "a", ProductID: "p", Type: models.MovementPurchase, Quantity: 5, CreatedAt: day},
		{ID: "m2", TenantID: "a", ProductID: "p", Type: models.MovementSale, Quantity: -2, CreatedAt: day.Add(time.Hour)},
		{ID: "m3", TenantID: "a", ProductID: "q", Type: models.MovementSale, Quantity: -1, CreatedAt: day.Add(24 * time.Hour)},
		{ID: "m4", TenantID: "b", ProductID: "p", Type: models.MovementSale, Quantity: -9, CreatedAt: day},
	}
	for i := range entries {
		require.NoError(t, s.Movements().Create(ctx, &entries[i]))
	}

	list, total, err := s.Movements().List(ctx, "a", models.MovementSale, models.Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, "m3", list[0].ID, "newest first")

	byProduct, err := s.Movements().ListByProduct(ctx, "a", "p")
	require.NoError(t, err)
	assert.Len(t, byProduct, 2)

	totals, err := s.Movements().DailyTotals(ctx, "a", day.Truncate(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, models.MovementDay{Date: "2026-03-02", In: 5, Out: 2}, totals[0])
	assert.Equal(t, models.MovementDay{Date: "2026-03-03", In: 0, Out: 1}, totals[1])
}

func TestSequences_PerTenant(t *testing.T) {
	s := New()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Sequences().Next(ctx, "a", store.SequenceOrders)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := s.Sequences().Next(ctx, "b", store.SequenceOrders)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Sequences().Next(ctx, "a", store.SequencePurchaseOrders)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
