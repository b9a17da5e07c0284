package store

import (
	"context"
	"database/sql"
	"errors"

	"stockd/internal/apperr"
	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type ledger struct {
	q DBTX
}

// Reserve atomically decrements stock if and only if enough is available.
// The predicate and the write are one statement, so two concurrent
// reservations on the same variant can never both pass the check.
func (l *ledger) Reserve(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error) {
	query := `
		UPDATE product_variants v
		SET stock = v.stock - $1
		FROM products p
		WHERE p.id = v.product_id
		  AND p.tenant_id = $2
		  AND v.product_id = $3
		  AND v.sku = $4
		  AND v.stock >= $1
		RETURNING v.product_id, p.name AS product_name, v.sku, v.stock, p.low_stock_threshold`

	var level models.StockLevel
	err := sqlx.GetContext(ctx, l.q, &level, query, quantity, tenantID, productID, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.InsufficientStock("insufficient stock for %s", sku)
	}
	if err != nil {
		return nil, classify(err, "failed to reserve stock")
	}
	return &level, nil
}

// Release atomically increments stock
func (l *ledger) Release(ctx context.Context, tenantID, productID, sku string, quantity int) (*models.StockLevel, error) {
	query := `
		UPDATE product_variants v
		SET stock = v.stock + $1
		FROM products p
		WHERE p.id = v.product_id
		  AND p.tenant_id = $2
		  AND v.product_id = $3
		  AND v.sku = $4
		RETURNING v.product_id, p.name AS product_name, v.sku, v.stock, p.low_stock_threshold`

	var level models.StockLevel
	err := sqlx.GetContext(ctx, l.q, &level, query, quantity, tenantID, productID, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product %s variant %s not found", productID, sku)
	}
	if err != nil {
		return nil, classify(err, "failed to release stock")
	}
	return &level, nil
}

type sequenceRepo struct {
	q DBTX
}

// Next increments and returns the tenant's counter in one statement
func (r *sequenceRepo) Next(ctx context.Context, tenantID, name string) (int64, error) {
	query := `
		INSERT INTO tenant_sequences (tenant_id, name, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, name)
		DO UPDATE SET value = tenant_sequences.value + 1
		RETURNING value`

	var value int64
	if err := sqlx.GetContext(ctx, r.q, &value, query, tenantID, name); err != nil {
		return 0, classify(err, "failed to allocate sequence")
	}
	return value, nil
}
