package json

import (
	"encoding/json"
	"net/http"

	"github.com/crewdesk/crewdesk/internal/log"
)

// ErrorResponse is the uniform error shape returned by every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteResponse writes a JSON response with the given status code.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes a JSON response with 200 OK status.
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, errCode string, details string) {
	response := ErrorResponse{
		Error:   errCode,
		Details: details,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text if JSON encoding fails
		http.Error(w, errCode+": "+details, statusCode)
	}
}

func WriteUnauthorized(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusUnauthorized, "unauthenticated", details)
}

func WriteBadRequest(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusBadRequest, "bad_request", details)
}

func WriteNotFound(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusNotFound, "not_found", details)
}

func WriteInternalServerError(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusInternalServerError, "internal_server_error", details)
}

func WriteServiceUnavailable(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", details)
}
