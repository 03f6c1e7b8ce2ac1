package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

// WorkflowHandler manages workflow definitions over HTTP
type WorkflowHandler struct {
	workflows WorkflowService
	logger    arbor.ILogger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows WorkflowService, logger arbor.ILogger) *WorkflowHandler {
	return &WorkflowHandler{
		workflows: workflows,
		logger:    logger,
	}
}

// workflowResponse adds the resolved field ids to a stored workflow
type workflowResponse struct {
	*models.Workflow
	FieldIDs         []string `json:"field_ids"`
	RejectedFieldIDs []string `json:"rejected_field_ids,omitempty"`
}

func newWorkflowResponse(workflow *models.Workflow) workflowResponse {
	ids, rejected, _ := extraction.ResolveFieldIDs(workflow.Fields)
	if ids == nil {
		ids = []string{}
	}
	return workflowResponse{Workflow: workflow, FieldIDs: ids, RejectedFieldIDs: rejected}
}

// ListHandler handles GET /api/workflows
func (h *WorkflowHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflows.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list workflows")
		return
	}

	out := make([]workflowResponse, 0, len(list))
	for _, workflow := range list {
		out = append(out, newWorkflowResponse(workflow))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": out,
		"count":     len(out),
	})
}

// CreateHandler handles POST /api/workflows (create or replace)
func (h *WorkflowHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var workflow models.Workflow
	if err := DecodeJSON(r, &workflow); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.workflows.Save(r.Context(), &workflow); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to save workflow")
		return
	}

	h.logger.Info().Str("workflow_id", workflow.ID).Msg("Workflow saved")
	WriteJSON(w, http.StatusCreated, newWorkflowResponse(&workflow))
}

// GetHandler handles GET /api/workflows/{id}
func (h *WorkflowHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowPathID(w, r)
	if !ok {
		return
	}

	workflow, err := h.workflows.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get workflow")
		return
	}
	WriteJSON(w, http.StatusOK, newWorkflowResponse(workflow))
}

// DeleteHandler handles DELETE /api/workflows/{id}
func (h *WorkflowHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowPathID(w, r)
	if !ok {
		return
	}

	if err := h.workflows.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to delete workflow")
		return
	}

	h.logger.Info().Str("workflow_id", id).Msg("Workflow deleted")
	WriteSuccess(w, "Workflow deleted")
}

func workflowPathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	segments := PathSegments(r.URL.Path, "/api/workflows/")
	if len(segments) != 1 {
		WriteError(w, http.StatusNotFound, "Not found")
		return "", false
	}
	return segments[0], true
}
