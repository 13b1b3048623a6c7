package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/lazyimg/internal/api"
	"github.com/timmy/lazyimg/internal/config"
	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/element"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/page"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/repository"
	"github.com/timmy/lazyimg/internal/storage"
	"github.com/timmy/lazyimg/internal/transport"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := logger.New(cfg.GetLoggerConfig("lazyimg-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the fetch ledger
	var records *repository.FetchRecordRepository
	var recorder prefetch.Recorder
	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		records = repository.NewFetchRecordRepository(db)
		recorder = records
	}

	// Initialize storage (memory, S3, R2)
	store, err := storage.NewStore(ctx, cfg.GetStorageConfig())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	doc, err := dom.ParseFile(cfg.Page.File)
	if err != nil {
		appLogger.WithError(err).WithField("file", cfg.Page.File).Fatal("Failed to load page")
	}

	pg := page.New(doc, &page.Config{
		Origin:         cfg.Page.Origin,
		ViewportWidth:  cfg.Page.ViewportWidth,
		ViewportHeight: cfg.Page.ViewportHeight,
		ElementHeight:  cfg.Page.ElementHeight,
		DebounceWindow: cfg.Prefetch.DebounceWindow,
		Workers:        cfg.Prefetch.Workers,
		Options: element.Options{
			RenderOnPreCached:   cfg.Render.RenderOnPreCached,
			RenderWithShadowDOM: cfg.Render.RenderWithShadowDOM,
			RenderAll:           cfg.Render.RenderAll,
		},
	}, page.Deps{
		Fetcher: transport.NewClient(&transport.Config{
			Timeout:   cfg.Prefetch.Timeout,
			UserAgent: cfg.Prefetch.UserAgent,
		}),
		Store:    store,
		Recorder: recorder,
	}, appLogger)

	if err := pg.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start page")
	}

	router := api.SetupRouter(pg, records, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"page":     cfg.Page.File,
			"elements": pg.Len(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	cancel()
	pg.Wait()

	appLogger.Info("Server exited")
}
