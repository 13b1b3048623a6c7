package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/page"
)

// mutableAttributes are the host attributes clients may set.
var mutableAttributes = map[string]bool{
	domain.AttrSrc:               true,
	domain.AttrSrcSet:            true,
	domain.AttrSizes:             true,
	domain.AttrWidth:             true,
	domain.AttrHeight:            true,
	domain.AttrAlt:               true,
	domain.AttrRenderOnPreCached: true,
}

// ElementHandler handles element endpoints.
type ElementHandler struct {
	page *page.Page
}

// NewElementHandler creates a new element handler.
// Parameters:
//   - pg: hosted page.
// Returns:
//   - *ElementHandler: initialized handler.
func NewElementHandler(pg *page.Page) *ElementHandler {
	return &ElementHandler{page: pg}
}

// ListElements handles GET /api/v1/elements.
func (h *ElementHandler) ListElements(c *gin.Context) {
	views, err := h.page.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to list elements", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"elements": views,
		"total":    len(views),
	})
}

// GetElement handles GET /api/v1/elements/:id.
func (h *ElementHandler) GetElement(c *gin.Context) {
	view, err := h.page.Element(c.Request.Context(), domain.ElementID(c.Param("id")))
	if err != nil {
		writeError(c, "Failed to get element", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// SetAttributeRequest is the body of PATCH /api/v1/elements/:id.
type SetAttributeRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value"`
}

// SetAttribute handles PATCH /api/v1/elements/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ElementHandler) SetAttribute(c *gin.Context) {
	var req SetAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if !mutableAttributes[req.Name] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Attribute is not mutable: " + req.Name,
		})
		return
	}

	view, err := h.page.SetAttribute(c.Request.Context(), domain.ElementID(c.Param("id")), req.Name, req.Value)
	if err != nil {
		writeError(c, "Failed to set attribute", err)
		return
	}

	c.JSON(http.StatusOK, view)
}
