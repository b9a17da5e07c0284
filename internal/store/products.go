package store

import (
	"context"
	"fmt"

	"stockd/internal/models"

	"github.com/jmoiron/sqlx"
)

type productRepo struct {
	q DBTX
}

// Create inserts a product together with its variants
func (r *productRepo) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (id, tenant_id, name, description, category, low_stock_threshold, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :description, :category, :low_stock_threshold, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, product); err != nil {
		return classify(err, "failed to create product")
	}

	for i := range product.Variants {
		product.Variants[i].ProductID = product.ID
		variantQuery := `
			INSERT INTO product_variants (product_id, sku, attributes, price, stock)
			VALUES (:product_id, :sku, :attributes, :price, :stock)`
		if _, err := sqlx.NamedExecContext(ctx, r.q, variantQuery, product.Variants[i]); err != nil {
			return classify(err, fmt.Sprintf("failed to create variant %s", product.Variants[i].SKU))
		}
	}
	return nil
}

// GetByID retrieves a product and its variants
func (r *productRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, r.q, &product,
		"SELECT * FROM products WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("product not found: %s", id))
	}

	if err := r.loadVariants(ctx, []*models.Product{&product}); err != nil {
		return nil, err
	}
	return &product, nil
}

// List retrieves a page of products, optionally filtered by category
func (r *productRepo) List(ctx context.Context, tenantID, category string, page models.Page) ([]models.Product, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if category != "" {
		where += " AND category = $2"
		args = append(args, category)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT count(*) FROM products "+where, args...); err != nil {
		return nil, 0, classify(err, "failed to count products")
	}

	query := "SELECT * FROM products " + where + " ORDER BY created_at DESC"
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
	}

	var products []models.Product
	if err := sqlx.SelectContext(ctx, r.q, &products, query, args...); err != nil {
		return nil, 0, classify(err, "failed to list products")
	}

	if err := r.loadVariants(ctx, productPointers(products)); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ListAll retrieves every product of a tenant
func (r *productRepo) ListAll(ctx context.Context, tenantID string) ([]models.Product, error) {
	products, _, err := r.List(ctx, tenantID, "", models.Page{})
	return products, err
}

func (r *productRepo) loadVariants(ctx context.Context, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	byID := make(map[string]*models.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Variants = []models.Variant{}
	}

	query, args, err := sqlx.In("SELECT * FROM product_variants WHERE product_id IN (?) ORDER BY sku", ids)
	if err != nil {
		return err
	}
	query = r.q.Rebind(query)

	var variants []models.Variant
	if err := sqlx.SelectContext(ctx, r.q, &variants, query, args...); err != nil {
		return classify(err, "failed to load variants")
	}

	for _, v := range variants {
		if p, ok := byID[v.ProductID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}
	return nil
}

func productPointers(products []models.Product) []*models.Product {
	ptrs := make([]*models.Product, len(products))
	for i := range products {
		ptrs[i] = &products[i]
	}
	return ptrs
}
