package api

import (
	"strconv"

	"stockd/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// pageFromQuery reads ?page= and ?limit=, falling back to sane bounds
func pageFromQuery(c *gin.Context) models.Page {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return models.Page{Page: page, Limit: limit}
}
