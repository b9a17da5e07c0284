package api

import (
	"net/http"

	"stockd/internal/service"

	"github.com/gin-gonic/gin"
)

// createSupplier handles POST /suppliers
func (h *Handler) createSupplier(c *gin.Context) {
	var req service.SupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	supplier, err := h.suppliers.CreateSupplier(c.Request.Context(), tenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceSuppliers)
	respondData(c, http.StatusCreated, supplier)
}

// listSuppliers handles GET /suppliers?search=&page=&limit=
func (h *Handler) listSuppliers(c *gin.Context) {
	page := pageFromQuery(c)
	search := c.Query("search")
	suffix := listSuffix(search, page)
	if h.serveCached(c, resourceSuppliers, suffix) {
		return
	}

	list, err := h.suppliers.ListSuppliers(c.Request.Context(), tenantID(c), search, page)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCachedPage(c, resourceSuppliers, suffix, list.Suppliers, page, list.Total)
	respondPage(c, list.Suppliers, page, list.Total)
}

// getSupplier handles GET /suppliers/:id
func (h *Handler) getSupplier(c *gin.Context) {
	id := c.Param("id")
	if h.serveCached(c, resourceSuppliers, "id:"+id) {
		return
	}

	supplier, err := h.suppliers.GetSupplier(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCached(c, resourceSuppliers, "id:"+id, supplier)
	respondData(c, http.StatusOK, supplier)
}

// updateSupplier handles PUT /suppliers/:id
func (h *Handler) updateSupplier(c *gin.Context) {
	var req service.SupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	supplier, err := h.suppliers.UpdateSupplier(c.Request.Context(), tenantID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceSuppliers)
	respondData(c, http.StatusOK, supplier)
}

// deleteSupplier handles DELETE /suppliers/:id
func (h *Handler) deleteSupplier(c *gin.Context) {
	if err := h.suppliers.DeleteSupplier(c.Request.Context(), tenantID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceSuppliers)
	respondMessage(c, http.StatusOK, "Supplier deleted")
}
