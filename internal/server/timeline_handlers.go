package server

import (
	"net/http"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/editor"
	"github.com/siwaht/bookx/pkg/models"
)

// handleGetTimeline returns a book's tracks with nested, position-ordered
// clips plus its chapter markers.
func (ss *StudioServer) handleGetTimeline(w http.ResponseWriter, r *http.Request, bookID string) {
	if !ss.requireMethod(w, r, http.MethodGet) {
		return
	}

	tracks, err := ss.db.ListTracks(bookID)
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving timeline", err)
		return
	}
	markers, err := ss.db.ListMarkers(bookID)
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving markers", err)
		return
	}

	ss.respondJSON(w, map[string]interface{}{
		"tracks":  tracks,
		"markers": markers,
	})
}

// handleCreateTrack creates a new track on a book's timeline.
func (ss *StudioServer) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		BookID string `json:"bookId"`
		Name   string `json:"name"`
		Type   string `json:"type"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	req.Name = sanitizeInput(req.Name)
	var errs []ValidationError
	if err := validateID(req.BookID, "book_id"); err != nil {
		errs = append(errs, *err)
	}
	if err := validateName(req.Name, "name"); err != nil {
		errs = append(errs, *err)
	}
	if len(errs) > 0 {
		ss.respondWithValidationError(w, r, errs)
		return
	}

	track, err := ss.editor.CreateTrack(req.BookID, req.Name, models.TrackType(req.Type))
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, track)
}

// handleUpdateTrack applies a partial track settings update.
func (ss *StudioServer) handleUpdateTrack(w http.ResponseWriter, r *http.Request, trackID string) {
	var req struct {
		Name      *string  `json:"name"`
		SortOrder *int     `json:"sortOrder"`
		GainDB    *float64 `json:"gainDb"`
		Pan       *float64 `json:"pan"`
		Muted     *bool    `json:"muted"`
		Solo      *bool    `json:"solo"`
		Locked    *bool    `json:"locked"`
		Color     *string  `json:"color"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}
	if req.Name != nil {
		clean := sanitizeInput(*req.Name)
		if err := validateName(clean, "name"); err != nil {
			ss.respondWithValidationError(w, r, []ValidationError{*err})
			return
		}
		req.Name = &clean
	}

	update := database.TrackUpdate{
		Name:      req.Name,
		SortOrder: req.SortOrder,
		GainDB:    req.GainDB,
		Pan:       req.Pan,
		Muted:     req.Muted,
		Solo:      req.Solo,
		Locked:    req.Locked,
		Color:     req.Color,
	}
	if err := ss.editor.UpdateTrackSettings(trackID, update); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}

	track, err := ss.db.GetTrackByID(trackID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, track)
}

// handleDeleteTrack deletes a track and all its clips.
func (ss *StudioServer) handleDeleteTrack(w http.ResponseWriter, r *http.Request, trackID string) {
	if err := ss.editor.DeleteTrack(trackID); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]string{"message": "Track deleted"})
}

// handleInsertClip places a full, untrimmed asset on a track.
func (ss *StudioServer) handleInsertClip(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		TrackID    string `json:"trackId"`
		AssetID    string `json:"assetId"`
		PositionMs int64  `json:"positionMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	var errs []ValidationError
	if err := validateID(req.TrackID, "track_id"); err != nil {
		errs = append(errs, *err)
	}
	if err := validateID(req.AssetID, "asset_id"); err != nil {
		errs = append(errs, *err)
	}
	if len(errs) > 0 {
		ss.respondWithValidationError(w, r, errs)
		return
	}

	clip, err := ss.editor.InsertClip(req.TrackID, req.AssetID, req.PositionMs)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, clip)
}

// handleUpdateClip applies direct property edits (gain/speed/fades/notes).
func (ss *StudioServer) handleUpdateClip(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		GainDB    *float64 `json:"gainDb"`
		Speed     *float64 `json:"speed"`
		FadeInMs  *int64   `json:"fadeInMs"`
		FadeOutMs *int64   `json:"fadeOutMs"`
		Notes     *string  `json:"notes"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	props := editor.ClipProperties{
		GainDB:    req.GainDB,
		Speed:     req.Speed,
		FadeInMs:  req.FadeInMs,
		FadeOutMs: req.FadeOutMs,
		Notes:     req.Notes,
	}
	if err := ss.editor.UpdateClipProperties(clipID, props); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}

	clip, err := ss.db.GetClipByID(clipID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, clip)
}

// handleDeleteClip removes a single clip.
func (ss *StudioServer) handleDeleteClip(w http.ResponseWriter, r *http.Request, clipID string) {
	if err := ss.editor.DeleteClip(clipID); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]string{"message": "Clip deleted"})
}

// handleMarkers lists or replaces a book's chapter markers.
func (ss *StudioServer) handleMarkers(w http.ResponseWriter, r *http.Request, bookID string) {
	switch r.Method {
	case http.MethodGet:
		markers, err := ss.db.ListMarkers(bookID)
		if err != nil {
			ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving markers", err)
			return
		}
		ss.respondJSON(w, markers)

	case http.MethodPut:
		var req struct {
			Markers []models.ChapterMarker `json:"markers"`
		}
		if !ss.decodeJSON(w, r, &req) {
			return
		}
		if err := ss.editor.ReplaceMarkers(bookID, req.Markers); err != nil {
			ss.respondWithOperationError(w, r, err)
			return
		}
		markers, err := ss.db.ListMarkers(bookID)
		if err != nil {
			ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving markers", err)
			return
		}
		ss.respondJSON(w, markers)

	default:
		ss.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	}
}

// handleAutoPopulate batch-inserts generated segments onto a narration
// track, seeding chapter markers from chapter titles.
func (ss *StudioServer) handleAutoPopulate(w http.ResponseWriter, r *http.Request, bookID string) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Segments     []editor.Segment `json:"segments"`
		SegmentGapMs int64            `json:"segmentGapMs"`
		ChapterGapMs int64            `json:"chapterGapMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Segments) == 0 {
		ss.respondWithValidationError(w, r, []ValidationError{{
			Field:   "segments",
			Message: "At least one segment is required",
			Code:    "MISSING_SEGMENTS",
		}})
		return
	}

	if err := ss.editor.AutoPopulate(bookID, req.Segments, req.SegmentGapMs, req.ChapterGapMs); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}

	tracks, err := ss.db.ListTracks(bookID)
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving timeline", err)
		return
	}
	ss.respondJSON(w, map[string]interface{}{"tracks": tracks})
}
