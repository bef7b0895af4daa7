package response

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code string, details any) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Common error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeUpstream           = "UPSTREAM_FAILURE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal server error", CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func StorageUnavailable(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, "booking storage is temporarily unavailable", CodeStorageUnavailable)
}
