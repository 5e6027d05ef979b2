package server

import (
	"net/http"
	"strings"
)

// handleStartRender kicks off a background render job for a book. The
// response carries the job id callers poll for status.
func (ss *StudioServer) handleStartRender(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		BookID     string   `json:"bookId"`
		ChapterIDs []string `json:"chapterIds"`
	}
	if !ss.decodeJSON(w, r, &req) {
		return
	}
	if err := validateID(req.BookID, "book_id"); err != nil {
		ss.respondWithValidationError(w, r, []ValidationError{*err})
		return
	}

	job, err := ss.renderManager.StartRender(req.BookID, req.ChapterIDs)
	if err != nil {
		ss.respondWithError(w, r, http.StatusInternalServerError, "Failed to start render", err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	ss.respondJSON(w, job)
}

// handleGetRenderJobs returns all render jobs, or one job when an id is
// present in the path.
func (ss *StudioServer) handleGetRenderJobs(w http.ResponseWriter, r *http.Request) {
	if !ss.requireMethod(w, r, http.MethodGet) {
		return
	}

	// Check if a specific job ID is requested: /api/render/jobs/{id}
	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) >= 5 && pathParts[4] != "" {
		jobID := pathParts[4]
		if err := validateID(jobID, "job_id"); err != nil {
			ss.respondWithValidationError(w, r, []ValidationError{*err})
			return
		}

		job, exists := ss.renderManager.GetJob(jobID)
		if !exists {
			ss.respondWithError(w, r, http.StatusNotFound, "Render job not found", nil)
			return
		}
		ss.respondJSON(w, job)
		return
	}

	ss.respondJSON(w, ss.renderManager.GetAllJobs())
}
