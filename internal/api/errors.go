package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondCategorized maps err to its status and code. Internal causes are
// not echoed to the client.
func respondCategorized(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		respondError(w, catErr.StatusCode, catErr.Code, "An internal error occurred", nil)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
