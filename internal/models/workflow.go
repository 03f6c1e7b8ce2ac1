package models

import (
	"encoding/json"
	"time"
)

// Workflow is a named set of requested fields applied to documents.
// Fields keeps the configuration exactly as authored: a list of ids, a list of
// {name, fieldId} objects, or a map of category to either list shape.
type Workflow struct {
	ID            string          `json:"id" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description,omitempty"`
	DocumentTypes []string        `json:"document_types,omitempty"`
	Fields        json.RawMessage `json:"fields" validate:"required"`
	Source        string          `json:"source,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
