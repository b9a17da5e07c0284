package api

import (
	"net/http"
	"strconv"

	"stockd/internal/apperr"
	"stockd/internal/service"

	"github.com/gin-gonic/gin"
)

// dashboardStats handles GET /dashboard/stats
func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, stats)
}

// topSellers handles GET /dashboard/top-sellers?days=&limit=
func (h *Handler) topSellers(c *gin.Context) {
	days, err := intQuery(c, "days", service.DefaultTopSellerDays)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", service.DefaultTopSellerLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	sellers, err := h.dashboard.TopSellers(c.Request.Context(), tenantID(c), days, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, sellers)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", key)
	}
	return n, nil
}
