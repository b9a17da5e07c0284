package store

import (
	"context"
	"fmt"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type orderRepo struct {
	q DBTX
}

// Create inserts an order header and its items
func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}

	query := `
		INSERT INTO orders (id, tenant_id, order_number, status, total_amount, customer_name,
		                    customer_email, notes, created_by, version, created_at, updated_at)
		VALUES (:id, :tenant_id, :order_number, :status, :total_amount, :customer_name,
		        :customer_email, :notes, :created_by, :version, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, order); err != nil {
		return classify(err, "failed to create order")
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
		itemQuery := `
			INSERT INTO order_items (order_id, position, product_id, variant_sku, quantity, fulfilled_quantity, price)
			VALUES (:order_id, :position, :product_id, :variant_sku, :quantity, :fulfilled_quantity, :price)`
		if _, err := sqlx.NamedExecContext(ctx, r.q, itemQuery, order.Items[i]); err != nil {
			return classify(err, "failed to create order item")
		}
	}
	return nil
}

// GetByID retrieves an order and its items
func (r *orderRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, r.q, &order,
		"SELECT * FROM orders WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("order not found: %s", id))
	}

	if err := r.loadItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// Update writes status, totals and item progress if nobody else changed
// the order since it was read.
func (r *orderRepo) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = :status, total_amount = :total_amount, updated_at = :updated_at, version = version + 1
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, r.q, query, order)
	if err != nil {
		return classify(err, "failed to update order")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err, "failed to update order")
	}
	if affected == 0 {
		return apperr.Wrap(apperr.KindTransientConflict, nil, "order %s was modified concurrently", order.ID)
	}

	for _, item := range order.Items {
		itemQuery := `
			UPDATE order_items
			SET fulfilled_quantity = :fulfilled_quantity, price = :price
			WHERE order_id = :order_id AND position = :position`
		if _, err := sqlx.NamedExecContext(ctx, r.q, itemQuery, item); err != nil {
			return classify(err, "failed to update order item")
		}
	}

	order.Version++
	return nil
}

// List retrieves a page of orders, optionally filtered by status
func (r *orderRepo) List(ctx context.Context, tenantID, status string, page models.Page) ([]models.Order, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT count(*) FROM orders "+where, args...); err != nil {
		return nil, 0, classify(err, "failed to count orders")
	}

	query := "SELECT * FROM orders " + where + " ORDER BY created_at DESC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, r.q, &orders, query, args...); err != nil {
		return nil, 0, classify(err, "failed to list orders")
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepo) loadItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	query, args, err := sqlx.In("SELECT * FROM order_items WHERE order_id IN (?) ORDER BY order_id, position", ids)
	if err != nil {
		return err
	}
	query = r.q.Rebind(query)

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, r.q, &items, query, args...); err != nil {
		return classify(err, "failed to load order items")
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

// TopSellers ranks products by quantity sold since the given time
func (r *orderRepo) TopSellers(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.TopSeller, error) {
	query := `
		SELECT i.product_id, p.name AS product_name,
		       SUM(i.quantity) AS total_quantity, SUM(i.quantity * i.price) AS total_revenue
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		JOIN products p ON p.id = i.product_id AND p.tenant_id = o.tenant_id
		WHERE o.tenant_id = $1 AND o.created_at >= $2 AND o.status IN ($3, $4)
		GROUP BY i.product_id, p.name
		ORDER BY total_quantity DESC, i.product_id
		LIMIT $5`

	var sellers []models.TopSeller
	err := sqlx.SelectContext(ctx, r.q, &sellers, query,
		tenantID, since, models.OrderStatusConfirmed, models.OrderStatusFulfilled, limit)
	if err != nil {
		return nil, classify(err, "failed to rank top sellers")
	}
	return sellers, nil
}
