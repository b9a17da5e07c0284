package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockd/internal/models"
	"stockd/internal/redisclient"
	"stockd/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Cached resources, invalidated per tenant after mutations
const (
	resourceProducts       = "products"
	resourceOrders         = "orders"
	resourcePurchaseOrders = "purchase-orders"
	resourceMovements      = "stock-movements"
	resourceSuppliers      = "suppliers"
)

const idempotencyTTL = 24 * time.Hour

// RedisStore is the Redis surface the handlers need. *redisclient.Client satisfies it.
type RedisStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string, resources ...string) error

	BlacklistToken(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)

	ClaimIdempotencyKey(ctx context.Context, tenantID, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, tenantID, key, resourceID string, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, tenantID, key string) error
	IdempotencyResult(ctx context.Context, tenantID, key string) (string, bool, error)
}

var _ RedisStore = (*redisclient.Client)(nil)

// cachedResponse is the cached form of a response. Page is set for lists.
type cachedResponse struct {
	Data  interface{}  `json:"data"`
	Page  *models.Page `json:"page,omitempty"`
	Total int          `json:"total,omitempty"`
}

// serveCached answers from the cache when possible. It reports whether a
// response was written.
func (h *Handler) serveCached(c *gin.Context, resource, suffix string) bool {
	if h.redis == nil {
		return false
	}

	key := redisclient.CacheKey(tenantID(c), resource, suffix)
	var cached cachedResponse
	hit, err := h.redis.GetJSON(c.Request.Context(), key, &cached)
	if err != nil {
		h.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !hit {
		util.CacheMissesTotal.WithLabelValues(resource).Inc()
		return false
	}

	util.CacheHitsTotal.WithLabelValues(resource).Inc()
	if cached.Page != nil {
		respondPage(c, cached.Data, *cached.Page, cached.Total)
	} else {
		respondData(c, http.StatusOK, cached.Data)
	}
	return true
}

// storeCached caches a single-resource response
func (h *Handler) storeCached(c *gin.Context, resource, suffix string, data interface{}) {
	h.setCache(c, resource, suffix, cachedResponse{Data: data})
}

// storeCachedPage caches a paginated response
func (h *Handler) storeCachedPage(c *gin.Context, resource, suffix string, data interface{}, page models.Page, total int) {
	h.setCache(c, resource, suffix, cachedResponse{Data: data, Page: &page, Total: total})
}

func (h *Handler) setCache(c *gin.Context, resource, suffix string, value cachedResponse) {
	if h.redis == nil {
		return
	}
	key := redisclient.CacheKey(tenantID(c), resource, suffix)
	if err := h.redis.SetJSON(c.Request.Context(), key, value, h.cacheTTL); err != nil {
		h.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops the tenant's cached views after a mutation
func (h *Handler) invalidate(c *gin.Context, resources ...string) {
	if h.redis == nil {
		return
	}
	if err := h.redis.InvalidateTenant(c.Request.Context(), tenantID(c), resources...); err != nil {
		h.logger.Warn("Cache invalidation failed",
			zap.String("tenant_id", tenantID(c)),
			zap.Strings("resources", resources),
			zap.Error(err),
		)
	}
}

func listSuffix(filter string, page models.Page) string {
	return fmt.Sprintf("list:%s:%d:%d", filter, page.Page, page.Limit)
}
