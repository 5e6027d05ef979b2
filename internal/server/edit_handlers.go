package server

import (
	"net/http"

	"github.com/siwaht/bookx/internal/editor"
)

// handleClipOperation dispatches /api/clips/{clipId}/{op} edit operations.
func (ss *StudioServer) handleClipOperation(w http.ResponseWriter, r *http.Request, clipID, op string) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	switch op {
	case "move":
		ss.handleMoveClip(w, r, clipID)
	case "trim":
		ss.handleTrimClip(w, r, clipID)
	case "split":
		ss.handleSplitClip(w, r, clipID)
	case "duplicate":
		ss.handleDuplicateClip(w, r, clipID)
	case "copy":
		ss.handleCopyClip(w, r, clipID)
	case "cut":
		ss.handleCutClip(w, r, clipID)
	case "preview":
		ss.handlePreviewMove(w, r, clipID)
	default:
		ss.respondWithError(w, r, http.StatusNotFound, "Unknown clip operation", nil)
	}
}

// handleMoveClip relocates a clip, optionally across tracks, with ripple
// collision resolution on the destination track.
func (ss *StudioServer) handleMoveClip(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		TargetTrackID string `json:"targetTrackId"`
		PositionMs    int64  `json:"positionMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	if err := ss.editor.Move(clipID, req.TargetTrackID, req.PositionMs); err != nil {
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

// handleTrimClip adjusts one edge of a clip's audible range.
func (ss *StudioServer) handleTrimClip(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		Edge    string `json:"edge"`
		DeltaMs int64  `json:"deltaMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	edge := editor.TrimEdge(req.Edge)
	if edge != editor.TrimStart && edge != editor.TrimEnd {
		ss.respondWithValidationError(w, r, []ValidationError{{
			Field:   "edge",
			Message: "Edge must be \"start\" or \"end\"",
			Code:    "INVALID_TRIM_EDGE",
		}})
		return
	}

	if err := ss.editor.Trim(clipID, edge, req.DeltaMs); err != nil {
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

// handleSplitClip cuts a clip in two at an absolute timeline position.
func (ss *StudioServer) handleSplitClip(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		AtMs int64 `json:"atMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	right, err := ss.editor.Split(clipID, req.AtMs)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}

	left, err := ss.db.GetClipByID(clipID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]interface{}{
		"left":  left,
		"right": right,
	})
}

// handleDuplicateClip copies a clip to just after its source.
func (ss *StudioServer) handleDuplicateClip(w http.ResponseWriter, r *http.Request, clipID string) {
	dup, err := ss.editor.Duplicate(clipID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, dup)
}

// handleCopyClip captures a clip snapshot on the clipboard.
func (ss *StudioServer) handleCopyClip(w http.ResponseWriter, r *http.Request, clipID string) {
	if err := ss.editor.Copy(clipID); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]string{"message": "Clip copied"})
}

// handleCutClip captures a snapshot and deletes the source clip.
func (ss *StudioServer) handleCutClip(w http.ResponseWriter, r *http.Request, clipID string) {
	if err := ss.editor.Cut(clipID); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]string{"message": "Clip cut"})
}

// handlePreviewMove returns the ripple-resolved track layout a move would
// settle into without persisting anything, so a UI can draw the pending
// positions while the user drags.
func (ss *StudioServer) handlePreviewMove(w http.ResponseWriter, r *http.Request, clipID string) {
	var req struct {
		PositionMs int64 `json:"positionMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	drag, err := ss.editor.BeginDrag(clipID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	positions, err := drag.Update(req.PositionMs)
	drag.Cancel()
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]interface{}{
		"clipId":    drag.PreviewClip(),
		"positions": positions,
	})
}

// handlePaste instantiates the clipboard snapshot on a target track at the
// playhead.
func (ss *StudioServer) handlePaste(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		TargetTrackID string `json:"targetTrackId"`
		PlayheadMs    int64  `json:"playheadMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}
	if err := validateID(req.TargetTrackID, "target_track_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	pasted, err := ss.editor.Paste(req.TargetTrackID, req.PlayheadMs)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, pasted)
}

// handleUndo restores the previous timeline snapshot.
func (ss *StudioServer) handleUndo(w http.ResponseWriter, r *http.Request, bookID string) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	applied, err := ss.editor.Undo(bookID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]bool{"applied": applied})
}

// handleRedo reapplies the most recently undone snapshot.
func (ss *StudioServer) handleRedo(w http.ResponseWriter, r *http.Request, bookID string) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	applied, err := ss.editor.Redo(bookID)
	if err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, map[string]bool{"applied": applied})
}
