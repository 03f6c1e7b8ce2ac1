package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Extraction (per document)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes)

	// API routes - Field catalogue
	mux.HandleFunc("/api/fields", s.app.FieldHandler.ListHandler)
	mux.HandleFunc("/api/fields/", s.app.FieldHandler.GetHandler)

	// API routes - Workflow definitions
	mux.Handle("/api/workflows", MethodRouter{
		http.MethodGet:  s.app.WorkflowHandler.ListHandler,
		http.MethodPost: s.app.WorkflowHandler.CreateHandler,
	})
	mux.Handle("/api/workflows/", MethodRouter{
		http.MethodGet:    s.app.WorkflowHandler.GetHandler,
		http.MethodDelete: s.app.WorkflowHandler.DeleteHandler,
	})

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/scheduler/jobs/", s.app.StatusHandler.TriggerJobHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDocumentRoutes routes /api/documents/{documentId}/... requests
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	h := s.app.ExtractionHandler

	if RouteBySegments(w, r, "/api/documents/", []SegmentRoute{
		{Pattern: []string{"", "extract"}, Handler: http.HandlerFunc(h.StartHandler)},
		{Pattern: []string{"", "extractions"}, Handler: http.HandlerFunc(h.DeleteHandler)},
		{Pattern: []string{"", "extraction", "status"}, Handler: http.HandlerFunc(h.StatusHandler)},
		{Pattern: []string{"", "extraction", "results"}, Handler: http.HandlerFunc(h.ResultsHandler)},
		{Pattern: []string{"", "extraction", "report"}, Handler: http.HandlerFunc(h.ReportHandler)},
		{Pattern: []string{"", "extraction", "cancel"}, Handler: http.HandlerFunc(h.CancelHandler)},
	}) {
		return
	}

	s.app.APIHandler.NotFoundHandler(w, r)
}
