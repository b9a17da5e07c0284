package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of sales orders created",
	})

	OrdersFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_fulfilled_total",
		Help: "Total number of sales orders that reached FULFILLED",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled sales orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order operations",
	}, []string{"reason"})

	PurchaseOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_created_total",
		Help: "Total number of purchase orders created",
	})

	PurchaseOrdersReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_received_total",
		Help: "Total number of purchase orders fully received",
	})

	StockMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Total number of recorded stock movements",
	}, []string{"type"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of conditional stock reservations",
		Buckets: prometheus.DefBuckets,
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	LowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low stock notifications emitted",
	})

	TxRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_retries_total",
		Help: "Total number of unit-of-work retries after a transient conflict",
	})

	TxDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txn_degraded_total",
		Help: "Number of times the coordinator fell back to non-transactional execution",
	})

	TxFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txn_failures_total",
		Help: "Total number of units of work that ended in an error",
	}, []string{"reason"})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Total number of tenant notifications published",
	}, []string{"event"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of tenant notifications that could not be delivered",
	}, []string{"event"})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of response cache hits",
	}, []string{"resource"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of response cache misses",
	}, []string{"resource"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
