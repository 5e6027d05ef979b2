package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/config"
	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/editor"
	"github.com/siwaht/bookx/internal/playback"
	"github.com/siwaht/bookx/internal/render"
)

// StudioServer is the HTTP surface of the audiobook production engine.
type StudioServer struct {
	db            *database.Database
	config        *config.Config
	logger        *logrus.Logger
	editor        *editor.Engine
	scheduler     *playback.Scheduler
	playbackState *playback.StateManager
	renderManager *render.Manager
	assetStore    *assets.Store
	cache         *assets.BufferCache
	generation    *assets.GenerationService
	watcher       *fsnotify.Watcher
	httpServer    *http.Server
}

// Deps bundles the services the server fronts.
type Deps struct {
	DB            *database.Database
	Editor        *editor.Engine
	Scheduler     *playback.Scheduler
	PlaybackState *playback.StateManager
	RenderManager *render.Manager
	AssetStore    *assets.Store
	Cache         *assets.BufferCache
	Generation    *assets.GenerationService
}

// NewStudioServer creates a new studio server instance
func NewStudioServer(cfg *config.Config, logger *logrus.Logger, deps Deps) *StudioServer {
	return &StudioServer{
		db:            deps.DB,
		config:        cfg,
		logger:        logger,
		editor:        deps.Editor,
		scheduler:     deps.Scheduler,
		playbackState: deps.PlaybackState,
		renderManager: deps.RenderManager,
		assetStore:    deps.AssetStore,
		cache:         deps.Cache,
		generation:    deps.Generation,
	}
}

// Start starts the studio server and blocks until it stops serving.
func (ss *StudioServer) Start() error {
	if ss.config.Assets.WatchImports {
		if err := ss.startImportWatcher(); err != nil {
			ss.logger.WithError(err).Warn("Could not start import watcher")
		}
	}

	handler := ss.panicRecoveryMiddleware(
		ss.corsMiddleware(
			ss.requestLoggingMiddleware(ss.setupRoutes())))

	ss.httpServer = &http.Server{
		Addr:        ss.config.GetAddress(),
		Handler:     handler,
		ReadTimeout: time.Duration(ss.config.Server.ReadTimeout) * time.Second,
	}

	ss.logger.WithFields(logrus.Fields{
		"address": ss.config.GetAddress(),
	}).Info("Bookx studio server starting")

	if err := ss.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (ss *StudioServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ss.handleHealthCheck)

	// Timeline routes
	mux.HandleFunc("/api/books/", ss.routeBooks)
	mux.HandleFunc("/api/tracks", ss.handleCreateTrack)
	mux.HandleFunc("/api/tracks/", ss.routeTracks)
	mux.HandleFunc("/api/clips", ss.handleInsertClip)
	mux.HandleFunc("/api/clips/", ss.routeClips)
	mux.HandleFunc("/api/clipboard/paste", ss.handlePaste)

	// Playback routes
	mux.HandleFunc("/api/playback/play", ss.handlePlay)
	mux.HandleFunc("/api/playback/pause", ss.handlePause)
	mux.HandleFunc("/api/playback/seek", ss.handleSeek)
	mux.HandleFunc("/api/playback/stop", ss.handleStopPlayback)
	mux.HandleFunc("/api/playback/state", ss.handlePlaybackState)

	// Render routes
	mux.HandleFunc("/api/render", ss.handleStartRender)
	mux.HandleFunc("/api/render/jobs", ss.handleGetRenderJobs)
	mux.HandleFunc("/api/render/jobs/", ss.handleGetRenderJobs)

	// Asset routes
	mux.HandleFunc("/api/assets", ss.handleListAssets)
	mux.HandleFunc("/api/assets/generate", ss.handleGenerateAsset)
	mux.HandleFunc("/api/assets/upload", ss.handleUploadAsset)
	mux.HandleFunc("/api/assets/", ss.handleDeleteAsset)

	return mux
}

// routeBooks dispatches /api/books/{bookId}/... subresources.
func (ss *StudioServer) routeBooks(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	// /api/books/{bookId}/{resource} splits into ["", "api", "books", id, resource]
	if len(pathParts) < 5 {
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown route", nil)
		return
	}
	bookID := pathParts[3]
	if err := validateID(bookID, "book_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	switch pathParts[4] {
	case "timeline":
		ss.handleGetTimeline(w, r, bookID)
	case "markers":
		ss.handleMarkers(w, r, bookID)
	case "undo":
		ss.handleUndo(w, r, bookID)
	case "redo":
		ss.handleRedo(w, r, bookID)
	case "autopopulate":
		ss.handleAutoPopulate(w, r, bookID)
	default:
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown route", nil)
	}
}

// routeTracks dispatches /api/tracks/{trackId}.
func (ss *StudioServer) routeTracks(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 {
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown route", nil)
		return
	}
	trackID := pathParts[3]
	if err := validateID(trackID, "track_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	switch r.Method {
	case http.MethodPut:
		ss.handleUpdateTrack(w, r, trackID)
	case http.MethodDelete:
		ss.handleDeleteTrack(w, r, trackID)
	default:
		ss.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	}
}

// routeClips dispatches /api/clips/{clipId} and /api/clips/{clipId}/{op}.
func (ss *StudioServer) routeClips(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 {
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown route", nil)
		return
	}
	clipID := pathParts[3]
	if err := validateID(clipID, "clip_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	if len(pathParts) >= 5 && pathParts[4] != "" {
		ss.handleClipOperation(w, r, clipID, pathParts[4])
		return
	}

	switch r.Method {
	case http.MethodPut:
		ss.handleUpdateClip(w, r, clipID)
	case http.MethodDelete:
		ss.handleDeleteClip(w, r, clipID)
	default:
		ss.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	}
}

// Shutdown gracefully shuts down the studio server
func (ss *StudioServer) Shutdown(ctx context.Context) {
	ss.logger.Info("Shutting down studio server...")

	ss.scheduler.Stop()
	ss.stopImportWatcher()

	if ss.httpServer != nil {
		if err := ss.httpServer.Shutdown(ctx); err != nil {
			ss.logger.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	ss.logger.Info("Studio server shutdown complete")
}
