package server

import (
	"net/http"
	"os"
	"time"
)

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Storage   string                 `json:"storage"`
	Assets    int                    `json:"assetCount"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns basic liveness + dependency checks.
func (ss *StudioServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "ok",
		Storage:   "ok",
		Details:   make(map[string]interface{}),
	}

	// Check database connectivity
	assetList, err := ss.db.ListAssets()
	if err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	} else {
		health.Assets = len(assetList)
	}

	// Check asset storage accessibility
	if _, err := os.Stat(ss.config.Assets.StoragePath); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	ss.respondJSON(w, health)
}
