package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxUploadBytes caps multipart upload size at 512 MB.
const maxUploadBytes = 512 << 20

// handleListAssets returns every registered audio asset.
func (ss *StudioServer) handleListAssets(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodGet) {
		return
	}

	list, err := ss.db.ListAssets()
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving assets", err)
		return
	}
	ss.respondJSON(w, list)
}

// handleGenerateAsset requests an asset from the external producer. The
// call is keyed by content hash, so repeating a prompt returns the cached
// asset without a second generation.
func (ss *StudioServer) handleGenerateAsset(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}
	if ss.generation == nil {
		ss.respondWithError(w, r, http.StatusServiceUnavailable, "No audio producer configured", nil)
		return
	}

	var req struct {
		Name   string `json:"name"`
		Prompt string `json:"prompt"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	req.Name = sanitizeInput(req.Name)
	var errs []ValidationError
	if err := validateName(req.Name, "name"); err != nil {
		errs = append(errs, *err)
	}
	if req.Prompt == "" {
		errs = append(errs, ValidationError{
			Field:   "prompt",
			Message: "Prompt is required",
			Code:    "MISSING_PROMPT",
		})
	}
	if len(errs) > 0 {
		ss.respondWithValidationError(w, r, errs)
		return
	}

	asset, err := ss.generation.Generate(r.Context(), req.Name, req.Prompt)
	if err != nil {
		ss.respondWithError(w, r, http.StatusBadGateway, "Asset generation failed", err)
		return
	}
	ss.respondJSON(w, asset)
}

// handleUploadAsset imports an uploaded audio file into the asset store.
func (ss *StudioServer) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		ss.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ss.respondWithError(w, r, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !ss.config.IsFormatSupported(ext) {
		ss.respondWithError(w, r, http.StatusBadRequest,
			"Invalid file type. Supported formats: "+strings.Join(ss.config.Assets.SupportedFormats, ", "), nil)
		return
	}

	// Sanitize filename to prevent path traversal
	safeFilename := filepath.Base(header.Filename)
	if safeFilename == "." || safeFilename == "/" {
		safeFilename = "uploaded_file" + ext
	}

	tmpDir, err := os.MkdirTemp("", "bookx-upload")
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Failed to stage upload", err)
		return
	}
	defer os.RemoveAll(tmpDir)

	stagePath := filepath.Join(tmpDir, safeFilename)
	dest, err := os.Create(stagePath)
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Failed to stage upload", err)
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		ss.respondWithError(w, r, http.StatusInternalServerError, "Failed to save file", err)
		return
	}
	dest.Close()

	asset, err := ss.assetStore.ImportFile(stagePath)
	if err != nil {
		ss.respondWithError(w, r, http.StatusBadRequest, "Failed to import file", err)
		return
	}

	ss.logger.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"filename": safeFilename,
	}).Info("File uploaded and registered as asset")
	ss.respondJSON(w, asset)
}

// handleDeleteAsset removes an asset; clips referencing it are deleted with
// it.
func (ss *StudioServer) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodDelete) {
		return
	}

	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) < 4 {
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown route", nil)
		return
	}
	assetID := pathParts[3]
	if err := validateID(assetID, "asset_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	if err := ss.assetStore.Delete(assetID); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.cache.Invalidate(assetID)
	ss.respondJSON(w, map[string]string{"message": "Asset deleted"})
}
