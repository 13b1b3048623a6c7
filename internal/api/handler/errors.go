package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/loop"
	"github.com/timmy/lazyimg/internal/page"
)

// writeError maps page errors to HTTP status codes.
func writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, page.ErrElementNotFound):
		status = http.StatusNotFound
	case errors.Is(err, loop.ErrLoopStopped), errors.Is(err, page.ErrNotStarted):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error": msg + ": " + err.Error(),
	})
}
