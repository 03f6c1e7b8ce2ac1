package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	extractions ExtractionService
	scheduler   SchedulerStatus
	startedAt   time.Time
	logger      arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(extractions ExtractionService, scheduler SchedulerStatus, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		extractions: extractions,
		scheduler:   scheduler,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":             common.GetVersion(),
		"uptime_seconds":      int64(time.Since(h.startedAt).Seconds()),
		"background_tasks":    common.GetTaskStats(),
		"running_extractions": h.extractions.Running(),
		"scheduler": map[string]interface{}{
			"running": h.scheduler.IsRunning(),
			"jobs":    h.scheduler.GetAllJobStatuses(),
		},
	})
}

// TriggerJobHandler handles POST /api/scheduler/jobs/{name}/trigger
func (h *StatusHandler) TriggerJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	segments := PathSegments(r.URL.Path, "/api/scheduler/jobs/")
	if len(segments) != 2 || segments[1] != "trigger" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := h.scheduler.TriggerJob(segments[0]); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info().Str("job", segments[0]).Msg("Scheduled job triggered")
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Job triggered",
	})
}
