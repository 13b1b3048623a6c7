package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/page"
)

// ViewportHandler moves and resizes the page viewport.
type ViewportHandler struct {
	page *page.Page
}

// NewViewportHandler creates a new viewport handler.
func NewViewportHandler(pg *page.Page) *ViewportHandler {
	return &ViewportHandler{page: pg}
}

// ViewportRequest is the body of POST /api/v1/viewport.
type ViewportRequest struct {
	Top    *int `json:"top" binding:"omitempty,min=0"`
	Height *int `json:"height" binding:"omitempty,min=1"`
}

// Update handles POST /api/v1/viewport.
func (h *ViewportHandler) Update(c *gin.Context) {
	var req ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Top == nil && req.Height == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Either top or height is required",
		})
		return
	}

	ctx := c.Request.Context()
	if req.Height != nil {
		if err := h.page.Resize(ctx, *req.Height); err != nil {
			writeError(c, "Failed to resize viewport", err)
			return
		}
	}
	if req.Top != nil {
		if err := h.page.Scroll(ctx, *req.Top); err != nil {
			writeError(c, "Failed to scroll viewport", err)
			return
		}
	}

	stats, err := h.page.Stats(ctx)
	if err != nil {
		writeError(c, "Failed to get stats", err)
		return
	}
	c.JSON(http.StatusOK, stats.Viewport)
}
