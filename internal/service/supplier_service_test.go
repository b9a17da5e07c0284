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

func TestCreateSupplier(t *testing.T) {
	env := newTestEnv(t)
	rating := decimal.RequireFromString("4.5")

	supplier, err := env.suppliers.CreateSupplier(context.Background(), tenantA, &SupplierRequest{
		Name:         "Acme Textiles",
		Email:        "orders@acme.test",
		Phone:        "+1 555 0100",
		PaymentTerms: "NET30",
		Rating:       &rating,
		Pricing: []SupplierPriceRequest{
			{ProductID: "p-1", VariantSKU: "A", Price: decimal.NewFromInt(7)},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, supplier.ID)
	assert.Equal(t, tenantA, supplier.TenantID)
	assert.True(t, supplier.Rating.Valid)
	assert.True(t, rating.Equal(supplier.Rating.Decimal))
	require.Len(t, supplier.Pricing, 1)
	assert.Equal(t, supplier.UpdatedAt, supplier.Pricing[0].UpdatedAt)

	stored, err := env.suppliers.GetSupplier(context.Background(), tenantA, supplier.ID)
	require.NoError(t, err)
	assert.Equal(t, "NET30", stored.PaymentTerms)
}

func TestCreateSupplier_Validation(t *testing.T) {
	env := newTestEnv(t)
	tooHigh := decimal.RequireFromString("5.5")

	tests := []struct {
		name string
		req  *SupplierRequest
	}{
		{"missing name", &SupplierRequest{Email: "a@b.test", Phone: "1"}},
		{"missing phone", &SupplierRequest{Name: "Acme", Email: "a@b.test"}},
		{"bad email", &SupplierRequest{Name: "Acme", Email: "not-an-email", Phone: "1"}},
		{"rating out of range", &SupplierRequest{Name: "Acme", Email: "a@b.test", Phone: "1", Rating: &tooHigh}},
		{"price without variant", &SupplierRequest{
			Name: "Acme", Email: "a@b.test", Phone: "1",
			Pricing: []SupplierPriceRequest{{ProductID: "p-1"}},
		}},
		{"negative price", &SupplierRequest{
			Name: "Acme", Email: "a@b.test", Phone: "1",
			Pricing: []SupplierPriceRequest{{ProductID: "p-1", VariantSKU: "A", Price: decimal.NewFromInt(-1)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.suppliers.CreateSupplier(context.Background(), tenantA, tt.req)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestUpdateSupplier_ReplacesFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedSupplier(t, tenantA)

	updated, err := env.suppliers.UpdateSupplier(ctx, tenantA, id, &SupplierRequest{
		Name:  "Acme Weaving",
		Email: "hello@acme.test",
		Phone: "+1 555 0101",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Weaving", updated.Name)
	assert.False(t, updated.Rating.Valid)

	_, err = env.suppliers.UpdateSupplier(ctx, tenantB, id, &SupplierRequest{
		Name: "Hijack", Email: "x@y.test", Phone: "1",
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	stored, err := env.suppliers.GetSupplier(ctx, tenantA, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Weaving", stored.Name)
}

func TestDeleteSupplier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.seedSupplier(t, tenantA)

	err := env.suppliers.DeleteSupplier(ctx, tenantB, id)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "other tenants cannot delete")

	require.NoError(t, env.suppliers.DeleteSupplier(ctx, tenantA, id))

	_, err = env.suppliers.GetSupplier(ctx, tenantA, id)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(env.suppliers.DeleteSupplier(ctx, tenantA, id), apperr.ErrNotFound))
}

func TestListSuppliers_SearchesByName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"Zeta Mills", "acme textiles", "Acme Dyes"} {
		_, err := env.suppliers.CreateSupplier(ctx, tenantA, &SupplierRequest{Name: name, Email: "a@b.test", Phone: "1"})
		require.NoError(t, err)
	}
	env.seedSupplier(t, tenantB)

	list, err := env.suppliers.ListSuppliers(ctx, tenantA, "ACME", models.Page{})
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, "Acme Dyes", list.Suppliers[0].Name)
	assert.Equal(t, "acme textiles", list.Suppliers[1].Name)

	page, err := env.suppliers.ListSuppliers(ctx, tenantA, "", models.Page{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Suppliers, 1)
	assert.Equal(t, "acme textiles", page.Suppliers[0].Name)

	empty, err := env.suppliers.ListSuppliers(ctx, tenantA, "nothing", models.Page{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Suppliers)
	assert.Empty(t, empty.Suppliers)
}
