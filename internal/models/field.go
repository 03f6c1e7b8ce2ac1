package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FieldDefinition is an entry of the provider's field catalogue
type FieldDefinition struct {
	FieldID       string        `json:"field_id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Type          string        `json:"type,omitempty"`
	AnswerOptions AnswerOptions `json:"answer_options,omitempty"`

	Region        string   `json:"region,omitempty"`
	Custom        bool     `json:"custom,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Languages     []string `json:"languages,omitempty"`
	DocumentTypes []string `json:"document_types,omitempty"`
	Jurisdictions []string `json:"jurisdictions,omitempty"`

	SyncedAt time.Time `json:"synced_at,omitempty"`
}

// IsClassification reports whether the field carries labelled answer options
func (f *FieldDefinition) IsClassification() bool {
	return len(f.AnswerOptions) > 0
}

// AnswerOptions maps an option key to its human-readable label.
// The provider sends either an object or a list of {key,label} entries.
type AnswerOptions map[string]string

// UnmarshalJSON accepts both catalogue encodings
func (o *AnswerOptions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}

	switch data[0] {
	case '{':
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(AnswerOptions, len(raw))
		for k, v := range raw {
			out[k] = stringify(v)
		}
		*o = out
		return nil
	case '[':
		var entries []map[string]any
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
		out := make(AnswerOptions, len(entries))
		for i, e := range entries {
			key := firstString(e, "key", "option", "id", "value")
			if key == "" {
				key = fmt.Sprintf("%d", i)
			}
			label := firstString(e, "label", "name", "text", "value")
			out[key] = label
		}
		*o = out
		return nil
	}
	return fmt.Errorf("unsupported answer_options encoding: %s", truncate(string(data), 40))
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
