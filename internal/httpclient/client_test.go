package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", nil)
}

func TestStartExtraction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/documents/lease 1/extract", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lease-review", body["workflow_id"])
		assert.Equal(t, "leases/lease1.pdf", body["document_path"])

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "job-1",
			"document_id": "lease 1",
			"workflow_id": "lease-review",
			"status":      "pending",
			"attempt":     1,
			"field_count": 4,
		})
	})

	started, err := client.StartExtraction(context.Background(), "lease 1", "lease-review", "leases/lease1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "job-1", started.ID)
	assert.Equal(t, models.JobStatusPending, started.Status)
	assert.Equal(t, 4, started.FieldCount)
}

func TestGetStatus_NotStarted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lease-review", r.URL.Query().Get("workflow_id"))
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "not_started",
			"message": "Extraction not started",
		})
	})

	_, err := client.GetStatus(context.Background(), "lease-1", "lease-review")
	assert.ErrorIs(t, err, extraction.ErrNotStarted)
}

func TestGetResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/lease-1/extraction/results", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "job-1",
			"document_id": "lease-1",
			"workflow_id": "lease-review",
			"status":      "complete",
			"field_count": 1,
			"fields": map[string]interface{}{
				"f-1": map[string]interface{}{
					"metadata":    map[string]interface{}{"field_id": "f-1", "name": "Parties"},
					"extractions": []map[string]interface{}{{"text": "Acme Corp"}},
					"has_answers": false,
				},
			},
		})
	})

	view, err := client.GetResults(context.Background(), "lease-1", "lease-review")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, view.Status)
	require.Contains(t, view.Fields, "f-1")
	assert.Equal(t, "Acme Corp", view.Fields["f-1"].Extractions[0].Text)
}

func TestCancel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/documents/lease-1/extraction/cancel", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"cancelled": true, "message": "Extraction cancelled"})
	})

	cancelled, err := client.Cancel(context.Background(), "lease-1", "lease-review")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestListFields_Query(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/fields", r.URL.Path)
		assert.Equal(t, "law", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"fields": []map[string]interface{}{{"field_id": "f-1", "name": "Governing Law"}},
			"count":  1,
		})
	})

	fields, err := client.ListFields(context.Background(), "law")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Governing Law", fields[0].Name)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": "extraction provider is not configured"})
	})

	_, err := client.ListWorkflows(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "extraction provider is not configured", apiErr.Message)
}
