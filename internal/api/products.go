package api

import (
	"net/http"

	"stockd/internal/service"

	"github.com/gin-gonic/gin"
)

// createProduct handles product creation with initial stock
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceProducts)
	respondData(c, http.StatusCreated, product)
}

// listProducts handles GET /products?category=&page=&limit=
func (h *Handler) listProducts(c *gin.Context) {
	page := pageFromQuery(c)
	category := c.Query("category")
	suffix := listSuffix(category, page)
	if h.serveCached(c, resourceProducts, suffix) {
		return
	}

	list, err := h.products.ListProducts(c.Request.Context(), tenantID(c), category, page)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCachedPage(c, resourceProducts, suffix, list.Products, page, list.Total)
	respondPage(c, list.Products, page, list.Total)
}

// getProduct handles GET /products/:id
func (h *Handler) getProduct(c *gin.Context) {
	id := c.Param("id")
	if h.serveCached(c, resourceProducts, "id:"+id) {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCached(c, resourceProducts, "id:"+id, product)
	respondData(c, http.StatusOK, product)
}

// lowStockProducts handles GET /products/low-stock
func (h *Handler) lowStockProducts(c *gin.Context) {
	if h.serveCached(c, resourceProducts, "low-stock") {
		return
	}

	items, err := h.products.LowStockProducts(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCached(c, resourceProducts, "low-stock", items)
	respondData(c, http.StatusOK, items)
}

// adjustStock handles POST /products/:id/adjust-stock
func (h *Handler) adjustStock(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	level, err := h.products.AdjustStock(c.Request.Context(), tenantID(c), userID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceProducts, resourceMovements)
	respondData(c, http.StatusOK, level)
}
