// Package zuva provides a client for the Zuva document-intelligence extraction API.
// It covers file upload, extraction submission, status polling, result retrieval,
// result normalization and the field catalogue.
package zuva

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/extracta/internal/models"
)

// Region selects the provider deployment; it only affects the base URL.
type Region string

const (
	RegionUS Region = "us"
	RegionEU Region = "eu"
)

// BaseURL returns the API root for the region
func (r Region) BaseURL() (string, error) {
	switch r {
	case RegionUS, RegionEU:
		return fmt.Sprintf("https://%s.app.zuva.ai/api/v2", r), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRegion, string(r))
}

// RequestStatus is the provider-side state of an extraction request
type RequestStatus string

const (
	StatusQueued     RequestStatus = "queued"
	StatusProcessing RequestStatus = "processing"
	StatusComplete   RequestStatus = "complete"
	StatusFailed     RequestStatus = "failed"
)

// StatusResponse is the body of GET /extraction/{id}
type StatusResponse struct {
	RequestID string        `json:"request_id"`
	FileID    string        `json:"file_id,omitempty"`
	Status    RequestStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
}

type uploadResponse struct {
	FileID      string          `json:"file_id"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	Expiration  string          `json:"expiration,omitempty"`
}

type submitRequest struct {
	FileIDs  []string `json:"file_ids"`
	FieldIDs []string `json:"field_ids"`
}

type submitResponse struct {
	FileIDs []struct {
		RequestID string `json:"request_id"`
		FileID    string `json:"file_id"`
		Status    string `json:"status"`
	} `json:"file_ids"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParsedResults is the normalized form of an extraction results payload
type ParsedResults struct {
	// Results maps field id to the located text occurrences of free-text fields
	Results map[string][]models.Extraction

	// AnswerMetadata maps field id to the classifier output of answer-type fields
	AnswerMetadata map[string]*models.AnswerMetadata
}
