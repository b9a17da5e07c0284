package store

import (
	"context"
	"fmt"

	"stockd/internal/apperr"
	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type purchaseOrderRepo struct {
	q DBTX
}

// Create inserts a purchase order header and its items
func (r *purchaseOrderRepo) Create(ctx context.Context, po *models.PurchaseOrder) error {
	if po.Version == 0 {
		po.Version = 1
	}

	query := `
		INSERT INTO purchase_orders (id, tenant_id, supplier_id, po_number, status, expected_delivery_date,
		                             actual_delivery_date, total_amount, notes, created_by, version, created_at, updated_at)
		VALUES (:id, :tenant_id, :supplier_id, :po_number, :status, :expected_delivery_date,
		        :actual_delivery_date, :total_amount, :notes, :created_by, :version, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, po); err != nil {
		return classify(err, "failed to create purchase order")
	}

	for i := range po.Items {
		po.Items[i].PurchaseOrderID = po.ID
		po.Items[i].Position = i
		itemQuery := `
			INSERT INTO purchase_order_items (purchase_order_id, position, product_id, variant_sku,
			                                  ordered_quantity, received_quantity, price)
			VALUES (:purchase_order_id, :position, :product_id, :variant_sku,
			        :ordered_quantity, :received_quantity, :price)`
		if _, err := sqlx.NamedExecContext(ctx, r.q, itemQuery, po.Items[i]); err != nil {
			return classify(err, "failed to create purchase order item")
		}
	}
	return nil
}

// GetByID retrieves a purchase order and its items
func (r *purchaseOrderRepo) GetByID(ctx context.Context, tenantID, id string) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := sqlx.GetContext(ctx, r.q, &po,
		"SELECT * FROM purchase_orders WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("purchase order not found: %s", id))
	}

	if err := r.loadItems(ctx, []*models.PurchaseOrder{&po}); err != nil {
		return nil, err
	}
	return &po, nil
}

// Update writes status, delivery date, totals and item progress if nobody
// else changed the purchase order since it was read.
func (r *purchaseOrderRepo) Update(ctx context.Context, po *models.PurchaseOrder) error {
	query := `
		UPDATE purchase_orders
		SET status = :status, actual_delivery_date = :actual_delivery_date, total_amount = :total_amount,
		    updated_at = :updated_at, version = version + 1
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, r.q, query, po)
	if err != nil {
		return classify(err, "failed to update purchase order")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err, "failed to update purchase order")
	}
	if affected == 0 {
		return apperr.Wrap(apperr.KindTransientConflict, nil, "purchase order %s was modified concurrently", po.ID)
	}

	for _, item := range po.Items {
		itemQuery := `
			UPDATE purchase_order_items
			SET received_quantity = :received_quantity, price = :price
			WHERE purchase_order_id = :purchase_order_id AND position = :position`
		if _, err := sqlx.NamedExecContext(ctx, r.q, itemQuery, item); err != nil {
			return classify(err, "failed to update purchase order item")
		}
	}

	po.Version++
	return nil
}

// List retrieves a page of purchase orders, optionally filtered by status
func (r *purchaseOrderRepo) List(ctx context.Context, tenantID, status string, page models.Page) ([]models.PurchaseOrder, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT count(*) FROM purchase_orders "+where, args...); err != nil {
		return nil, 0, classify(err, "failed to count purchase orders")
	}

	query := "SELECT * FROM purchase_orders " + where + " ORDER BY created_at DESC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var pos []models.PurchaseOrder
	if err := sqlx.SelectContext(ctx, r.q, &pos, query, args...); err != nil {
		return nil, 0, classify(err, "failed to list purchase orders")
	}

	ptrs := make([]*models.PurchaseOrder, len(pos))
	for i := range pos {
		ptrs[i] = &pos[i]
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	return pos, total, nil
}

// PendingQuantities sums open quantities on SENT and CONFIRMED purchase orders
func (r *purchaseOrderRepo) PendingQuantities(ctx context.Context, tenantID string) (map[models.VariantKey]int, error) {
	query := `
		SELECT i.product_id, i.variant_sku, SUM(i.ordered_quantity - i.received_quantity) AS pending
		FROM purchase_order_items i
		JOIN purchase_orders po ON po.id = i.purchase_order_id
		WHERE po.tenant_id = $1 AND po.status IN ($2, $3)
		GROUP BY i.product_id, i.variant_sku`

	var rows []struct {
		ProductID  string `db:"product_id"`
		VariantSKU string `db:"variant_sku"`
		Pending    int    `db:"pending"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, tenantID, models.POStatusSent, models.POStatusConfirmed); err != nil {
		return nil, classify(err, "failed to sum pending purchase orders")
	}

	pending := make(map[models.VariantKey]int, len(rows))
	for _, row := range rows {
		if row.Pending > 0 {
			pending[models.VariantKey{ProductID: row.ProductID, SKU: row.VariantSKU}] = row.Pending
		}
	}
	return pending, nil
}

// CountOpen counts purchase orders still awaiting delivery
func (r *purchaseOrderRepo) CountOpen(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n,
		"SELECT count(*) FROM purchase_orders WHERE tenant_id = $1 AND status IN ($2, $3)",
		tenantID, models.POStatusSent, models.POStatusConfirmed)
	if err != nil {
		return 0, classify(err, "failed to count open purchase orders")
	}
	return n, nil
}

func (r *purchaseOrderRepo) loadItems(ctx context.Context, pos []*models.PurchaseOrder) error {
	if len(pos) == 0 {
		return nil
	}

	ids := make([]string, len(pos))
	byID := make(map[string]*models.PurchaseOrder, len(pos))
	for i, po := range pos {
		ids[i] = po.ID
		byID[po.ID] = po
		po.Items = []models.PurchaseOrderItem{}
	}

	query, args, err := sqlx.In(
		"SELECT * FROM purchase_order_items WHERE purchase_order_id IN (?) ORDER BY purchase_order_id, position", ids)
	if err != nil {
		return err
	}
	query = r.q.Rebind(query)

	var items []models.PurchaseOrderItem
	if err := sqlx.SelectContext(ctx, r.q, &items, query, args...); err != nil {
		return classify(err, "failed to load purchase order items")
	}

	for _, item := range items {
		if po, ok := byID[item.PurchaseOrderID]; ok {
			po.Items = append(po.Items, item)
		}
	}
	return nil
}
