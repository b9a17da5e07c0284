package api

import (
	"net/http"

	"stockd/internal/apperr"
	"stockd/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createOrder handles order creation. A repeated Idempotency-Key returns the
// order created by the first request instead of placing a new one.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	tenant := tenantID(c)
	key := c.GetHeader("Idempotency-Key")

	if key != "" && h.redis != nil {
		claimed, err := h.redis.ClaimIdempotencyKey(ctx, tenant, key, idempotencyTTL)
		if err != nil {
			h.logger.Warn("Idempotency claim failed, continuing without it", zap.Error(err))
			key = ""
		} else if !claimed {
			h.replayOrder(c, tenant, key)
			return
		}
	} else {
		key = ""
	}

	order, err := h.orders.CreateOrder(ctx, tenant, userID(c), &req)
	if err != nil {
		if key != "" {
			if relErr := h.redis.ReleaseIdempotencyKey(ctx, tenant, key); relErr != nil {
				h.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
			}
		}
		respondError(c, err)
		return
	}

	if key != "" {
		if err := h.redis.CompleteIdempotencyKey(ctx, tenant, key, order.ID, idempotencyTTL); err != nil {
			h.logger.Warn("Failed to store idempotency result", zap.Error(err))
		}
	}

	h.invalidate(c, resourceOrders, resourceProducts, resourceMovements)
	respondData(c, http.StatusCreated, order)
}

// replayOrder answers a retried creation with the original order
func (h *Handler) replayOrder(c *gin.Context, tenant, key string) {
	orderID, done, err := h.redis.IdempotencyResult(c.Request.Context(), tenant, key)
	if err != nil {
		respondError(c, err)
		return
	}
	if !done {
		respondError(c, apperr.New(apperr.KindTransientConflict, "A request with this idempotency key is still in progress"))
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), tenant, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Idempotent-Replayed", "true")
	respondData(c, http.StatusOK, order)
}

// listOrders handles GET /orders?status=&page=&limit=
func (h *Handler) listOrders(c *gin.Context) {
	page := pageFromQuery(c)
	status := c.Query("status")
	suffix := listSuffix(status, page)
	if h.serveCached(c, resourceOrders, suffix) {
		return
	}

	list, err := h.orders.ListOrders(c.Request.Context(), tenantID(c), status, page)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCachedPage(c, resourceOrders, suffix, list.Orders, page, list.Total)
	respondPage(c, list.Orders, page, list.Total)
}

// getOrder handles GET /orders/:id
func (h *Handler) getOrder(c *gin.Context) {
	id := c.Param("id")
	if h.serveCached(c, resourceOrders, "id:"+id) {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCached(c, resourceOrders, "id:"+id, order)
	respondData(c, http.StatusOK, order)
}

// cancelOrder handles PUT /orders/:id/cancel
func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.orders.CancelOrder(c.Request.Context(), tenantID(c), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceOrders, resourceProducts, resourceMovements)
	respondData(c, http.StatusOK, order)
}

// fulfillOrder handles PUT /orders/:id/fulfill
func (h *Handler) fulfillOrder(c *gin.Context) {
	order, err := h.orders.FulfillOrder(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceOrders)
	respondData(c, http.StatusOK, order)
}

type fulfillItemsRequest struct {
	Items []service.FulfillmentRequest `json:"items" binding:"required,min=1,dive"`
}

// fulfillOrderItems handles PUT /orders/:id/fulfill-items
func (h *Handler) fulfillOrderItems(c *gin.Context) {
	var req fulfillItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := h.orders.FulfillOrderItems(c.Request.Context(), tenantID(c), c.Param("id"), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	h.invalidate(c, resourceOrders)
	respondData(c, http.StatusOK, order)
}
