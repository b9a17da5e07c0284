package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sseKeepAlive = 25 * time.Second

// streamEvents streams the caller's tenant notifications as server-sent events
func (h *Handler) streamEvents(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "UNAVAILABLE",
			"message": "Notifications are disabled",
		})
		return
	}

	tenant := tenantID(c)
	sub := h.hub.Subscribe(tenant)
	defer sub.Close()

	h.logger.Debug("Notification stream opened", zap.String("tenant_id", tenant), zap.String("user_id", userID(c)))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(n.Event, n)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			return true
		}
	})

	h.logger.Debug("Notification stream closed", zap.String("tenant_id", tenant))
}
