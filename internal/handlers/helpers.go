package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/documents"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/services/extraction"
	"github.com/ternarybob/extracta/internal/services/workflows"
	"github.com/ternarybob/extracta/internal/zuva"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// StatusForError maps service errors to HTTP status codes.
func StatusForError(err error) int {
	var configErr *extraction.ConfigurationError
	var validationErr *zuva.ValidationError
	var notFoundErr *zuva.NotFoundError
	var authErr *zuva.AuthenticationError

	switch {
	case errors.As(err, &configErr),
		errors.As(err, &validationErr),
		errors.Is(err, workflows.ErrInvalidWorkflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extraction.ErrNotStarted),
		errors.Is(err, interfaces.ErrWorkflowNotFound),
		errors.Is(err, interfaces.ErrFieldNotFound),
		errors.Is(err, interfaces.ErrJobNotFound),
		errors.Is(err, documents.ErrDocumentNotFound),
		errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.Is(err, extraction.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, extraction.ErrShuttingDown),
		errors.Is(err, extraction.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError logs unexpected failures and writes the mapped error response.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, msg string) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
		WriteError(w, status, fmt.Sprintf("%s: %v", msg, err))
		return
	}
	WriteError(w, status, err.Error())
}

// DecodeJSON reads a JSON request body. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// QueryBool reads a boolean query parameter, false when absent or malformed.
func QueryBool(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && value
}

// PathSegments splits the path after prefix into its non-empty segments.
// Example: PathSegments("/api/workflows/lease", "/api/workflows/") -> ["lease"]
func PathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	var segments []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
