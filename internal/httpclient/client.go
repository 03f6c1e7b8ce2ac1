// Package httpclient is a client for the Extracta HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Error is a non-2xx API response
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extracta api error (%d): %s", e.StatusCode, e.Message)
}

// Client calls a running Extracta server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an API client for baseURL, e.g. http://localhost:8085
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(30 * time.Second)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// StartResponse is the body of an accepted start request
type StartResponse struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	WorkflowID string           `json:"workflow_id"`
	Status     models.JobStatus `json:"status"`
	Attempt    int64            `json:"attempt"`
	FieldCount int              `json:"field_count"`
}

// StartExtraction starts (or observes) the extraction of documentID with workflowID.
// An empty documentPath lets the server resolve the document id.
func (c *Client) StartExtraction(ctx context.Context, documentID, workflowID, documentPath string) (*StartResponse, error) {
	body := map[string]string{"workflow_id": workflowID}
	if documentPath != "" {
		body["document_path"] = documentPath
	}

	var out StartResponse
	if err := c.do(ctx, http.MethodPost, documentURL(documentID, "extract"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus returns the job summary. extraction.ErrNotStarted is returned when
// no extraction exists for the pair.
func (c *Client) GetStatus(ctx context.Context, documentID, workflowID string) (*extraction.StatusSummary, error) {
	var out extraction.StatusSummary
	query := url.Values{"workflow_id": {workflowID}}
	if err := c.do(ctx, http.MethodGet, documentURL(documentID, "extraction", "status"), query, nil, &out); err != nil {
		return nil, err
	}
	if out.Status == "not_started" {
		return nil, extraction.ErrNotStarted
	}
	return &out, nil
}

// GetResults returns the results view; Fields is empty until the job is complete.
func (c *Client) GetResults(ctx context.Context, documentID, workflowID string) (*extraction.ResultsView, error) {
	var out extraction.ResultsView
	query := url.Values{"workflow_id": {workflowID}}
	if err := c.do(ctx, http.MethodGet, documentURL(documentID, "extraction", "results"), query, nil, &out); err != nil {
		return nil, err
	}
	if out.Status == "not_started" {
		return nil, extraction.ErrNotStarted
	}
	return &out, nil
}

// ListResults returns the results of every workflow extracted for documentID
func (c *Client) ListResults(ctx context.Context, documentID string) ([]*extraction.ResultsView, error) {
	var out struct {
		Results []*extraction.ResultsView `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, documentURL(documentID, "extraction", "results"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Cancel cancels an active extraction, reporting whether anything was cancelled
func (c *Client) Cancel(ctx context.Context, documentID, workflowID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	query := url.Values{"workflow_id": {workflowID}}
	if err := c.do(ctx, http.MethodPost, documentURL(documentID, "extraction", "cancel"), query, nil, &out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

// ListWorkflows returns the stored workflow definitions
func (c *Client) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	var out struct {
		Workflows []*models.Workflow `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

// ListFields searches the synced field catalogue
func (c *Client) ListFields(ctx context.Context, query string) ([]*models.FieldDefinition, error) {
	var out struct {
		Fields []*models.FieldDefinition `json:"fields"`
	}
	var values url.Values
	if query != "" {
		values = url.Values{"q": {query}}
	}
	if err := c.do(ctx, http.MethodGet, "/api/fields", values, nil, &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

func documentURL(documentID string, parts ...string) string {
	return "/api/documents/" + url.PathEscape(documentID) + "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil {
			if apiErr.Error != "" {
				message = apiErr.Error
			} else if apiErr.Message != "" {
				message = apiErr.Message
			}
		}
		return &Error{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
