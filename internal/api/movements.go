package api

import (
	"net/http"
	"strconv"

	"stockd/internal/apperr"

	"github.com/gin-gonic/gin"
)

// listMovements handles GET /stock-movements?type=&page=&limit=
func (h *Handler) listMovements(c *gin.Context) {
	page := pageFromQuery(c)
	movementType := c.Query("type")
	suffix := listSuffix(movementType, page)
	if h.serveCached(c, resourceMovements, suffix) {
		return
	}

	list, err := h.movements.ListMovements(c.Request.Context(), tenantID(c), movementType, page)
	if err != nil {
		respondError(c, err)
		return
	}

	h.storeCachedPage(c, resourceMovements, suffix, list.Movements, page, list.Total)
	respondPage(c, list.Movements, page, list.Total)
}

// productMovements handles GET /stock-movements/product/:id
func (h *Handler) productMovements(c *gin.Context) {
	movements, err := h.movements.ProductMovements(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, movements)
}

// movementStats handles GET /stock-movements/stats?days=
func (h *Handler) movementStats(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			respondError(c, apperr.Validation("days must be between 1 and 365"))
			return
		}
		days = n
	}

	stats, err := h.movements.MovementStats(c.Request.Context(), tenantID(c), days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, stats)
}
