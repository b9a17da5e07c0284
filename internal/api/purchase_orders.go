package api

import (
	"net/http"

	"stockd/internal/service"

	"github.com/gin-gonic/gin"
)

// createPurchaseOrder handles PO creation
func (h *Handler) createPurchaseOrder(c *gin.Context) {
	var req service.CreatePurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	po, err := h.purchaseOrders.CreatePurchaseOrder(c.Request.Context(), tenantID(c), userID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourcePurchaseOrders)
	respondData(c, http.StatusCreated, po)
}

// listPurchaseOrders handles GET /purchase-orders?status=&page=&limit=
func (h *Handler) listPurchaseOrders(c *gin.Context) {
	page := pageFromQuery(c)
	status := c.Query("status")
	suffix := listSuffix(status, page)
	if h.serveCached(c, resourcePurchaseOrders, suffix) {
		return
	}

	list, err := h.purchaseOrders.ListPurchaseOrders(c.Request.Context(), tenantID(c), status, page)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCachedPage(c, resourcePurchaseOrders, suffix, list.PurchaseOrders, page, list.Total)
	respondPage(c, list.PurchaseOrders, page, list.Total)
}

// getPurchaseOrder handles GET /purchase-orders/:id
func (h *Handler) getPurchaseOrder(c *gin.Context) {
	id := c.Param("id")
	if h.serveCached(c, resourcePurchaseOrders, "id:"+id) {
		return
	}

	po, err := h.purchaseOrders.GetPurchaseOrder(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCached(c, resourcePurchaseOrders, "id:"+id, po)
	respondData(c, http.StatusOK, po)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updatePurchaseOrderStatus handles PUT /purchase-orders/:id/status
func (h *Handler) updatePurchaseOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	po, err := h.purchaseOrders.UpdateStatus(c.Request.Context(), tenantID(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	// pending quantities feed the low stock report
	h.invalidate(c, resourcePurchaseOrders, resourceProducts)
	respondData(c, http.StatusOK, po)
}

type receiveItemsRequest struct {
	Items []service.ReceiveItemRequest `json:"items" binding:"required,min=1,dive"`
}

// receivePurchaseOrder handles PUT /purchase-orders/:id/receive
func (h *Handler) receivePurchaseOrder(c *gin.Context) {
	var req receiveItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	po, err := h.purchaseOrders.ReceiveItems(c.Request.Context(), tenantID(c), c.Param("id"), userID(c), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourcePurchaseOrders, resourceProducts, resourceMovements)
	respondData(c, http.StatusOK, po)
}
