package server

import (
	"net/http"
)

// handlePlay starts playback of a book's timeline from an offset. Calling
// it during an active session reschedules from the new offset.
func (ss *StudioServer) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		BookID     string `json:"bookId"`
		PositionMs int64  `json:"positionMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}
	if req.BookID == "" {
		// Resume from the paused session if there is one.
		state := ss.playbackState.GetState()
		if state.BookID == "" {
			ss.respondWithValidationError(w, r, []ValidationError{{
				Field:   "book_id",
				Message: "book_id is required",
				Code:    "MISSING_BOOK_ID",
			}})
			return
		}
		req.BookID = state.BookID
		req.PositionMs = state.PositionMs
	}

	if err := ss.scheduler.Play(req.BookID, req.PositionMs); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, ss.playbackState.GetState())
}

// handlePause tears down the schedule, keeping the playhead in place.
func (ss *StudioServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	ss.scheduler.Pause()
	ss.respondJSON(w, ss.playbackState.GetState())
}

// handleSeek moves the playhead, rescheduling if playback is active.
func (ss *StudioServer) handleSeek(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		PositionMs int64 `json:"positionMs"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}

	if err := ss.scheduler.Seek(req.PositionMs); err != nil {
		ss.respondWithOperationError(w, r, err)
		return
	}
	ss.respondJSON(w, ss.playbackState.GetState())
}

// handleStopPlayback stops playback and resets the playhead.
func (ss *StudioServer) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	ss.scheduler.Stop()
	ss.respondJSON(w, ss.playbackState.GetState())
}

// handlePlaybackState returns the observational playback state. Polled by
// the presentation layer once per animation tick.
func (ss *StudioServer) handlePlaybackState(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodGet) {
		return
	}
	ss.respondJSON(w, ss.playbackState.GetState())
}
