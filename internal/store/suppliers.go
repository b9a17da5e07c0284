package store

import (
	"context"
	"database/sql"
	"fmt"

	"stockd/internal/apperr"
	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type supplierRepo struct {
	q DBTX
}

// Create inserts a supplier
func (r *supplierRepo) Create(ctx context.Context, supplier *models.Supplier) error {
	query := `
		INSERT INTO suppliers (id, tenant_id, name, contact_person, email, phone, address,
		                       payment_terms, rating, pricing, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :contact_person, :email, :phone, :address,
		        :payment_terms, :rating, :pricing, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, supplier); err != nil {
		return classify(err, "failed to create supplier")
	}
	return nil
}

// GetByID retrieves a supplier of the tenant
func (r *supplierRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Supplier, error) {
	var supplier models.Supplier
	err := sqlx.GetContext(ctx, r.q, &supplier,
		"SELECT * FROM suppliers WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("supplier not found: %s", id))
	}
	return &supplier, nil
}

// List retrieves a page of suppliers sorted by name
func (r *supplierRepo) List(ctx context.Context, tenantID, search string, page models.Page) ([]models.Supplier, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if search != "" {
		where += " AND name ILIKE '%' || $2 || '%'"
		args = append(args, search)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT count(*) FROM suppliers "+where, args...); err != nil {
		return nil, 0, classify(err, "failed to count suppliers")
	}

	query := "SELECT * FROM suppliers " + where + " ORDER BY name"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var suppliers []models.Supplier
	if err := sqlx.SelectContext(ctx, r.q, &suppliers, query, args...); err != nil {
		return nil, 0, classify(err, "failed to list suppliers")
	}
	return suppliers, total, nil
}

// Update overwrites the editable fields of a supplier
func (r *supplierRepo) Update(ctx context.Context, supplier *models.Supplier) error {
	query := `
		UPDATE suppliers
		SET name = :name, contact_person = :contact_person, email = :email, phone = :phone,
		    address = :address, payment_terms = :payment_terms, rating = :rating, pricing = :pricing,
		    updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`

	res, err := sqlx.NamedExecContext(ctx, r.q, query, supplier)
	if err != nil {
		return classify(err, "failed to update supplier")
	}
	return requireRow(res, "supplier not found: %s", supplier.ID)
}

// Delete removes a supplier of the tenant
func (r *supplierRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM suppliers WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return classify(err, "failed to delete supplier")
	}
	return requireRow(res, "supplier not found: %s", id)
}

func requireRow(res sql.Result, format string, args ...interface{}) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err, "failed to read affected rows")
	}
	if affected == 0 {
		return apperr.NotFound(format, args...)
	}
	return nil
}
