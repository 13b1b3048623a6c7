package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/lazyimg/internal/api/handler"
	"github.com/timmy/lazyimg/internal/api/middleware"
	"github.com/timmy/lazyimg/internal/config"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/page"
	"github.com/timmy/lazyimg/internal/repository"
)

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - pg: the hosted page.
//   - records: fetch ledger; nil when the database is disabled.
//   - cfg: server configuration.
//   - log: base logger.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(pg *page.Page, records *repository.FetchRecordRepository, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(pg)
	elementHandler := handler.NewElementHandler(pg)
	viewportHandler := handler.NewViewportHandler(pg)
	prefetchHandler := handler.NewPrefetchHandler(pg, records)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Elements
		v1.GET("/elements", elementHandler.ListElements)
		v1.GET("/elements/:id", elementHandler.GetElement)
		v1.PATCH("/elements/:id", elementHandler.SetAttribute)

		// Viewport
		v1.POST("/viewport", viewportHandler.Update)

		// Prefetch
		v1.GET("/prefetch", prefetchHandler.GetStats)
		v1.GET("/prefetch/records", prefetchHandler.ListRecords)
	}

	return r
}
