package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
)

// HealthCheck checks one dependency; a nil error means healthy
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

type APIHandler struct {
	logger             arbor.ILogger
	checks             map[string]HealthCheck
	providerConfigured bool
}

// NewAPIHandler creates the system handler. checks are run by the health endpoint.
func NewAPIHandler(logger arbor.ILogger, checks map[string]HealthCheck, providerConfigured bool) *APIHandler {
	return &APIHandler{
		logger:             logger,
		checks:             checks,
		providerConfigured: providerConfigured,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":             common.GetVersion(),
		"build":               common.GetBuild(),
		"git_commit":          common.GetGitCommit(),
		"go_version":          runtime.Version(),
		"provider_configured": h.providerConfigured,
	})
}

// HealthHandler runs the dependency checks. Any failure answers 503 with status "degraded".
// A missing provider is reported but does not fail the check; status and results stay readable.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			healthy = false
			results[name] = err.Error()
			h.logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			continue
		}
		results[name] = "ok"
	}

	provider := "configured"
	if !h.providerConfigured {
		provider = "not_configured"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	WriteJSON(w, code, map[string]interface{}{
		"status":   status,
		"checks":   results,
		"provider": provider,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
