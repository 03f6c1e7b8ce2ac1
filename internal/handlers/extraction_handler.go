package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

// statusNotStarted is reported for pairs with no extraction record
const statusNotStarted = "not_started"

// ExtractionHandler serves the per-document extraction endpoints
type ExtractionHandler struct {
	service   ExtractionService
	workflows WorkflowService
	reports   ReportRenderer
	logger    arbor.ILogger
}

// NewExtractionHandler creates a new extraction handler
func NewExtractionHandler(service ExtractionService, workflows WorkflowService, reports ReportRenderer, logger arbor.ILogger) *ExtractionHandler {
	return &ExtractionHandler{
		service:   service,
		workflows: workflows,
		reports:   reports,
		logger:    logger,
	}
}

// StartRequest is the optional body of a start request
type StartRequest struct {
	WorkflowID   string `json:"workflow_id"`
	DocumentPath string `json:"document_path"`
}

// documentID extracts {documentId} from /api/documents/{documentId}/...
func documentID(r *http.Request) string {
	segments := PathSegments(r.URL.Path, "/api/documents/")
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

func workflowID(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("workflow_id"))
}

// StartHandler handles POST /api/documents/{documentId}/extract
func (h *ExtractionHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req StartRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id := workflowID(r); id != "" {
		req.WorkflowID = id
	}
	if req.DocumentPath == "" {
		req.DocumentPath = r.URL.Query().Get("document_path")
	}

	docID := documentID(r)
	// Without an explicit path the document id is resolved under the documents base dir
	if req.DocumentPath == "" {
		req.DocumentPath = docID
	}

	job, err := h.service.Start(r.Context(), docID, req.WorkflowID, req.DocumentPath)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to start extraction")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":          job.ID,
		"document_id": job.DocumentID,
		"workflow_id": job.WorkflowID,
		"status":      job.Status,
		"attempt":     job.Attempt,
		"field_count": len(job.FieldIDs),
	})
}

// StatusHandler handles GET /api/documents/{documentId}/extraction/status
func (h *ExtractionHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	docID, wfID := documentID(r), workflowID(r)
	if wfID == "" {
		WriteError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	summary, err := h.service.GetStatus(r.Context(), docID, wfID)
	if errors.Is(err, extraction.ErrNotStarted) {
		writeNotStarted(w, docID, wfID)
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get extraction status")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// ResultsHandler handles GET /api/documents/{documentId}/extraction/results.
// Without workflow_id it lists results for every workflow of the document.
func (h *ExtractionHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	docID, wfID := documentID(r), workflowID(r)
	if wfID == "" {
		views, err := h.service.ListForDocument(r.Context(), docID)
		if err != nil {
			WriteServiceError(w, h.logger, err, "Failed to list extraction results")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"document_id": docID,
			"results":     views,
			"count":       len(views),
		})
		return
	}

	view, ok, err := h.service.GetResults(r.Context(), docID, wfID)
	if errors.Is(err, extraction.ErrNotStarted) {
		writeNotStarted(w, docID, wfID)
		return
	}
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get extraction results")
		return
	}
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"id":            view.JobID,
			"document_id":   docID,
			"workflow_id":   wfID,
			"status":        view.Status,
			"error_message": view.ErrorMessage,
			"message":       fmt.Sprintf("Extraction is %s", view.Status),
		})
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// ReportHandler handles GET /api/documents/{documentId}/extraction/report
func (h *ExtractionHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	docID, wfID := documentID(r), workflowID(r)
	if wfID == "" {
		WriteError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	view, ok, err := h.service.GetResults(r.Context(), docID, wfID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to get extraction results")
		return
	}
	if !ok {
		WriteError(w, http.StatusConflict, fmt.Sprintf("extraction is %s, report is available once complete", view.Status))
		return
	}

	var order []string
	if workflow, err := h.workflows.Get(r.Context(), wfID); err == nil {
		order, _, _ = extraction.ResolveFieldIDs(workflow.Fields)
	}

	data, err := h.reports.Render(view, order)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to render extraction report")
		return
	}

	filename := fmt.Sprintf("%s-%s.pdf", docID, wfID)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// CancelHandler handles POST or DELETE /api/documents/{documentId}/extraction/cancel
func (h *ExtractionHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	docID, wfID := documentID(r), workflowID(r)
	if wfID == "" {
		WriteError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), docID, wfID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to cancel extraction")
		return
	}

	message := "Extraction cancelled"
	if !cancelled {
		message = "No active extraction to cancel"
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"workflow_id": wfID,
		"cancelled":   cancelled,
		"message":     message,
	})
}

// DeleteHandler handles DELETE /api/documents/{documentId}/extractions
func (h *ExtractionHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	docID := documentID(r)
	deleted, err := h.service.DeleteForDocument(r.Context(), docID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to delete extractions")
		return
	}

	h.logger.Info().Str("document_id", docID).Int("deleted", deleted).Msg("Deleted document extractions")
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"deleted":     deleted,
	})
}

func writeNotStarted(w http.ResponseWriter, docID, wfID string) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": docID,
		"workflow_id": wfID,
		"status":      statusNotStarted,
		"message":     "Extraction not started",
	})
}
