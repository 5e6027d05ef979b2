package server

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// startImportWatcher initializes fsnotify monitoring of the import
// directory. Audio files dropped there are registered as imported assets.
func (ss *StudioServer) startImportWatcher() error {
	if err := os.MkdirAll(ss.config.Assets.ImportPath, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	ss.watcher = watcher

	// Start monitoring in a goroutine
	go ss.watchImports()

	if err := watcher.Add(ss.config.Assets.ImportPath); err != nil {
		return err
	}

	ss.logger.WithField("import_path", ss.config.Assets.ImportPath).Info("Import watcher started")
	return nil
}

// watchImports selects on watcher channels and dispatches events.
func (ss *StudioServer) watchImports() {
	defer ss.watcher.Close()

	for {
		select {
		case event, ok := <-ss.watcher.Events:
			if !ok {
				return
			}
			ss.handleImportEvent(event)

		case err, ok := <-ss.watcher.Errors:
			if !ok {
				return
			}
			ss.logger.WithError(err).Error("Import watcher error")
		}
	}
}

// handleImportEvent filters events down to newly created audio files.
func (ss *StudioServer) handleImportEvent(event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !event.Has(fsnotify.Create) || !ss.config.IsFormatSupported(ext) {
		return
	}

	// Dispatch asynchronously
	go func(name string) {
		time.Sleep(500 * time.Millisecond) // Ensure file is fully written
		ss.handleNewImport(name)
	}(event.Name)
}

// handleNewImport registers a dropped file as an imported asset.
func (ss *StudioServer) handleNewImport(filePath string) {
	ss.logger.WithField("file_path", filePath).Info("New audio file detected in import directory")

	asset, err := ss.assetStore.ImportFile(filePath)
	if err != nil {
		ss.logger.WithError(err).WithField("file_path", filePath).Error("Error importing file")
		return
	}

	ss.logger.WithField("asset_id", asset.ID).Info("Imported dropped file")
}

// stopImportWatcher closes the watcher (idempotent).
func (ss *StudioServer) stopImportWatcher() {
	if ss.watcher != nil {
		ss.watcher.Close()
	}
}
