package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/services/fields"
)

// FieldHandler serves the synced field catalogue
type FieldHandler struct {
	catalogue FieldCatalogue
	logger    arbor.ILogger
}

// NewFieldHandler creates a new field handler
func NewFieldHandler(catalogue FieldCatalogue, logger arbor.ILogger) *FieldHandler {
	return &FieldHandler{
		catalogue: catalogue,
		logger:    logger,
	}
}

// ListHandler handles GET /api/fields?refresh=&q=&classification=
func (h *FieldHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	filter := fields.Filter{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("classification"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "classification must be true or false")
			return
		}
		filter.Classification = &value
	}

	list, err := h.catalogue.List(r.Context(), QueryBool(r, "refresh"), filter)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list fields")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fields": list,
		"count":  len(list),
	})
}

// GetHandler handles GET /api/fields/{fieldId}
func (h *FieldHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	segments := PathSegments(r.URL.Path, "/api/fields/")
	if len(segments) != 1 {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	field, err := h.catalogue.Get(r.Context(), segments[0])
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get field")
		return
	}
	WriteJSON(w, http.StatusOK, field)
}
