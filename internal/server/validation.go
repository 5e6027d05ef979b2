package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/internal/editor"
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as a JSON response body.
func (ss *StudioServer) respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ss.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ss *StudioServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errs []ValidationError) {
	ss.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errs,
	}).Warn("Validation failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	result := ValidationResult{
		Valid:  false,
		Errors: errs,
	}

	ss.respondJSON(w, result)
}

// respondWithError sends a structured error response
func (ss *StudioServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ss.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"error":   message,
		"code":    statusCode,
		"success": false,
	}

	ss.respondJSON(w, response)
}

// respondWithOperationError maps service errors onto HTTP status codes:
// unknown ids are 404, rejected edits are 400, everything else is 500.
func (ss *StudioServer) respondWithOperationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		ss.respondWithError(w, r, http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, editor.ErrInvalidOperation):
		ss.respondWithError(w, r, http.StatusBadRequest, err.Error(), nil)
	default:
		ss.respondWithError(w, r, http.StatusInternalServerError, "Operation failed", err)
	}
}

// decodeJSON parses a request body, rejecting unknown fields.
func (ss *StudioServer) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		ss.respondWithError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// requireMethod rejects requests with the wrong HTTP method.
func (ss *StudioServer) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		ss.respondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
		return false
	}
	return true
}

// validateID validates a path identifier segment.
func validateID(id, field string) *ValidationError {
	if id == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "MISSING_" + strings.ToUpper(field),
		}
	}

	if len(id) > 64 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s too long (max 64 characters)", field),
			Code:    "INVALID_" + strings.ToUpper(field),
		}
	}

	for _, c := range id {
		valid := c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !valid {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s contains invalid characters", field),
				Code:    "INVALID_" + strings.ToUpper(field),
			}
		}
	}

	return nil
}

// validateName validates a user-supplied display name.
func validateName(name, field string) *ValidationError {
	if name == "" {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is required", field),
			Code:    "MISSING_" + strings.ToUpper(field),
		}
	}

	if len(name) > 255 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s too long (max 255 characters)", field),
			Code:    strings.ToUpper(field) + "_TOO_LONG",
		}
	}

	if strings.ContainsAny(name, "\x00\n\r") {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s contains invalid characters", field),
			Code:    "INVALID_" + strings.ToUpper(field) + "_CHARACTERS",
		}
	}

	return nil
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}
