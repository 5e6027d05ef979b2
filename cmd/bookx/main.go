package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/editor"
	"github.com/siwaht/bookx/internal/history"
	"github.com/siwaht/bookx/internal/playback"
	"github.com/siwaht/bookx/internal/qc"
	"github.com/siwaht/bookx/internal/render"
	"github.com/siwaht/bookx/internal/server"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load .env file if it exists (for the producer endpoint)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("Could not load .env file")
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	configureLogger(logger, cfg.Logging)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	// Asset storage, decode cache, and the optional generation producer
	assetStore, err := assets.NewStore(cfg.Assets.StoragePath, db)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing asset store")
	}
	cache := assets.NewBufferCache(assetStore)

	var generation *assets.GenerationService
	if cfg.Assets.ProducerURL != "" {
		producer := assets.NewHTTPProducer(cfg.Assets.ProducerURL)
		generation = assets.NewGenerationService(assetStore, db, producer)
		logger.WithField("producer_url", cfg.Assets.ProducerURL).Info("Audio producer configured")
	} else {
		logger.Warn("No audio producer configured; asset generation disabled")
	}

	// Edit engine with bounded undo/redo history
	hist := history.New(cfg.Editing.HistoryDepth)
	engine := editor.NewEngine(db, hist, cfg.Editing)

	// Playback scheduler; the sink is a no-op until a device frontend is
	// attached
	playbackState := playback.NewStateManager()
	scheduler := playback.NewScheduler(db, cache, playback.NopSink{}, playbackState, cfg.Playback, logger)

	// Render pipeline with the ACX analyzer
	analyzer := qc.NewAnalyzer(qc.DefaultSpec(), logger)
	renderManager, err := render.NewManager(db, cache, analyzer, cfg.Render, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing render manager")
	}

	studioServer := server.NewStudioServer(cfg, logger, server.Deps{
		DB:            db,
		Editor:        engine,
		Scheduler:     scheduler,
		PlaybackState: playbackState,
		RenderManager: renderManager,
		AssetStore:    assetStore,
		Cache:         cache,
		Generation:    generation,
	})

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		if err := studioServer.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	studioServer.Shutdown(ctx)
}

// configureLogger applies the configured level and format.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
