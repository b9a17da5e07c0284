package api

import (
	"net/http"

	"stockd/internal/apperr"
	"stockd/internal/models"
	"stockd/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInsufficientStock:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindTransientConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Unclassified errors are logged
// and answered with a generic message.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		util.LoggerFor(c.Request.Context()).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		kind = apperr.KindInternal
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   kind,
		"message": apperr.MessageOf(err),
	})
}

// respondBindError answers a request body that failed binding
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   apperr.KindValidation,
		"message": "Invalid request body",
		"details": err.Error(),
	})
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondPage(c *gin.Context, data interface{}, page models.Page, total int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"meta": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": total,
		},
	})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
	})
}
