package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"stockd/internal/realtime"
	"stockd/internal/service"
	"stockd/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services groups the engines the HTTP surface exposes
type Services struct {
	Products       *service.ProductService
	Orders         *service.OrderService
	PurchaseOrders *service.PurchaseOrderService
	Movements      *service.MovementRecorder
	Suppliers      *service.SupplierService
	Dashboard      *service.DashboardService
	Hub            *realtime.Hub
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	products       *service.ProductService
	orders         *service.OrderService
	purchaseOrders *service.PurchaseOrderService
	movements      *service.MovementRecorder
	suppliers      *service.SupplierService
	dashboard      *service.DashboardService
	hub            *realtime.Hub

	jwtSecret []byte
	redis     RedisStore
	cacheTTL  time.Duration
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, jwtSecret string) *Handler {
	return &Handler{
		products:       svc.Products,
		orders:         svc.Orders,
		purchaseOrders: svc.PurchaseOrders,
		movements:      svc.Movements,
		suppliers:      svc.Suppliers,
		dashboard:      svc.Dashboard,
		hub:            svc.Hub,
		jwtSecret:      []byte(jwtSecret),
		checks:         make(map[string]ReadinessCheck),
		logger:         util.GetLogger(),
	}
}

// WithRedis enables response caching, token revocation and idempotency keys
func (h *Handler) WithRedis(redis RedisStore, cacheTTL time.Duration) *Handler {
	h.redis = redis
	h.cacheTTL = cacheTTL
	return h
}

// WithReadinessCheck adds a dependency to the /ready check
func (h *Handler) WithReadinessCheck(name string, check ReadinessCheck) *Handler {
	h.checks[name] = check
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.authMiddleware())
	{
		v1.POST("/auth/logout", h.logout)
		v1.GET("/events", h.streamEvents)

		products := v1.Group("/products")
		products.GET("", h.listProducts)
		products.GET("/low-stock", h.lowStockProducts)
		products.GET("/:id", h.getProduct)
		products.POST("", RequireRole(RoleOwner, RoleManager), h.createProduct)
		products.POST("/:id/adjust-stock", RequireRole(RoleOwner, RoleManager), h.adjustStock)

		orders := v1.Group("/orders")
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.PUT("/:id/cancel", h.cancelOrder)
		orders.PUT("/:id/fulfill", h.fulfillOrder)
		orders.PUT("/:id/fulfill-items", h.fulfillOrderItems)

		pos := v1.Group("/purchase-orders")
		pos.POST("", RequireRole(RoleOwner, RoleManager), h.createPurchaseOrder)
		pos.GET("", h.listPurchaseOrders)
		pos.GET("/:id", h.getPurchaseOrder)
		pos.PUT("/:id/status", RequireRole(RoleOwner, RoleManager), h.updatePurchaseOrderStatus)
		pos.PUT("/:id/receive", RequireRole(RoleOwner, RoleManager, RoleStaff), h.receivePurchaseOrder)

		movements := v1.Group("/stock-movements")
		movements.GET("", h.listMovements)
		movements.GET("/stats", h.movementStats)
		movements.GET("/product/:id", h.productMovements)

		suppliers := v1.Group("/suppliers")
		suppliers.GET("", h.listSuppliers)
		suppliers.GET("/:id", h.getSupplier)
		suppliers.POST("", RequireRole(RoleOwner, RoleManager), h.createSupplier)
		suppliers.PUT("/:id", RequireRole(RoleOwner, RoleManager), h.updateSupplier)
		suppliers.DELETE("/:id", RequireRole(RoleOwner), h.deleteSupplier)

		dashboard := v1.Group("/dashboard")
		dashboard.GET("/stats", h.dashboardStats)
		dashboard.GET("/top-sellers", h.topSellers)
		dashboard.GET("/stock-movement", h.movementStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
