package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/page"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	page *page.Page
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pg *page.Page) *HealthHandler {
	return &HealthHandler{page: pg}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"title":    h.page.Title(),
		"elements": h.page.Len(),
	})
}
