package store

import (
	"context"
	"fmt"
	"time"

	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type movementRepo struct {
	q DBTX
}

// Create appends a stock movement. Movements are never updated or deleted.
func (r *movementRepo) Create(ctx context.Context, m *models.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, tenant_id, product_id, variant_sku, type, quantity,
		                             user_id, reference, notes, created_at)
		VALUES (:id, :tenant_id, :product_id, :variant_sku, :type, :quantity,
		        :user_id, :reference, :notes, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, m); err != nil {
		return classify(err, "failed to record stock movement")
	}
	return nil
}

// List retrieves a page of movements, optionally filtered by type
func (r *movementRepo) List(ctx context.Context, tenantID, movementType string, page models.Page) ([]models.StockMovement, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if movementType != "" {
		where += " AND type = $2"
		args = append(args, movementType)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT count(*) FROM stock_movements "+where, args...); err != nil {
		return nil, 0, classify(err, "failed to count stock movements")
	}

	query := "SELECT * FROM stock_movements " + where + " ORDER BY created_at DESC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var movements []models.StockMovement
	if err := sqlx.SelectContext(ctx, r.q, &movements, query, args...); err != nil {
		return nil, 0, classify(err, "failed to list stock movements")
	}
	return movements, total, nil
}

// ListByProduct retrieves every movement of one product
func (r *movementRepo) ListByProduct(ctx context.Context, tenantID, productID string) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := sqlx.SelectContext(ctx, r.q, &movements,
		"SELECT * FROM stock_movements WHERE tenant_id = $1 AND product_id = $2 ORDER BY created_at DESC",
		tenantID, productID)
	if err != nil {
		return nil, classify(err, "failed to list product movements")
	}
	return movements, nil
}

// DailyTotals aggregates inbound and outbound quantities per day
func (r *movementRepo) DailyTotals(ctx context.Context, tenantID string, since time.Time) ([]models.MovementDay, error) {
	query := `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(CASE WHEN quantity > 0 THEN quantity ELSE 0 END), 0) AS in_qty,
		       COALESCE(SUM(CASE WHEN quantity < 0 THEN -quantity ELSE 0 END), 0) AS out_qty
		FROM stock_movements
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY 1
		ORDER BY 1`

	var days []models.MovementDay
	if err := sqlx.SelectContext(ctx, r.q, &days, query, tenantID, since); err != nil {
		return nil, classify(err, "failed to aggregate stock movements")
	}
	return days, nil
}
