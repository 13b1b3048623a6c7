package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/lazyimg/internal/config"
	"github.com/timmy/lazyimg/internal/dom"
	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/page"
	"github.com/timmy/lazyimg/internal/prefetch"
	"github.com/timmy/lazyimg/internal/repository"
	"github.com/timmy/lazyimg/internal/storage"
	"github.com/timmy/lazyimg/internal/transport"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "lazyimg-warm",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	pageFile := flag.String("page", "", "HTML page to warm (defaults to page.file)")
	origin := flag.String("origin", "", "Origin for relative image URLs (defaults to page.origin)")
	workers := flag.Int("workers", 0, "Number of fetch workers (defaults to prefetch.workers)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *pageFile == "" {
		*pageFile = cfg.Page.File
	}
	if *origin == "" {
		*origin = cfg.Page.Origin
	}
	if *workers <= 0 {
		*workers = cfg.Prefetch.Workers
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	var recorder prefetch.Recorder
	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		recorder = repository.NewFetchRecordRepository(db)
	}

	store, err := storage.NewStore(ctx, cfg.GetStorageConfig())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	doc, err := dom.ParseFile(*pageFile)
	if err != nil {
		appLogger.WithError(err).WithField("file", *pageFile).Fatal("Failed to load page")
	}

	pg := page.New(doc, &page.Config{
		Origin:   *origin,
		Workers:  *workers,
		Detached: true,
	}, page.Deps{
		Fetcher: transport.NewClient(&transport.Config{
			Timeout:   cfg.Prefetch.Timeout,
			UserAgent: cfg.Prefetch.UserAgent,
		}),
		Store:    store,
		Recorder: recorder,
	}, appLogger)

	appLogger.WithFields(logger.Fields{
		"page":     *pageFile,
		"origin":   *origin,
		"workers":  *workers,
		"elements": pg.Len(),
	}).Info("Starting warm-up")

	start := time.Now()
	if err := pg.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start page")
	}

	stats, err := pg.Warm(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Warm-up interrupted")
	}

	logger.With(logger.Fields{
		"entries":    stats.Entries,
		"cached":     stats.Cached,
		"dispatched": stats.Dispatched,
		"failed":     stats.Failed,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Warm-up completed")

	cancel()
	pg.Wait()
}
