package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/domain"
	"github.com/timmy/lazyimg/internal/page"
	"github.com/timmy/lazyimg/internal/repository"
)

const maxRecordLimit = 500

// PrefetchHandler reports prefetch progress and the fetch ledger.
type PrefetchHandler struct {
	page    *page.Page
	records *repository.FetchRecordRepository
}

// NewPrefetchHandler creates a new prefetch handler.
// Parameters:
//   - pg: hosted page.
//   - records: fetch ledger, nil when disabled.
// Returns:
//   - *PrefetchHandler: initialized handler.
func NewPrefetchHandler(pg *page.Page, records *repository.FetchRecordRepository) *PrefetchHandler {
	return &PrefetchHandler{page: pg, records: records}
}

// GetStats handles GET /api/v1/prefetch.
func (h *PrefetchHandler) GetStats(c *gin.Context) {
	stats, err := h.page.Stats(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to get stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListRecords handles GET /api/v1/prefetch/records.
func (h *PrefetchHandler) ListRecords(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Fetch ledger is disabled",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > maxRecordLimit {
		limit = 50
	}

	var (
		records []domain.FetchRecord
		err     error
	)
	if url := c.Query("url"); url != "" {
		records, err = h.records.ListByURL(c.Request.Context(), url)
	} else {
		records, err = h.records.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list fetch records: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
	})
}
