package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/extracta/internal/zuva"
)

// ResolveFieldIDs flattens a workflow's field configuration into provider field ids.
//
// Accepted shapes: a list of id strings, a list of objects carrying fieldId or
// field_id, or an object mapping category names to either list shape. Ids are
// returned de-duplicated in first-seen order. Candidates that are not UUIDs are
// returned in rejected, along with objects that carry no id at all (as "") and
// category values that are not lists (as "category: value"). Only a configuration
// that is not valid JSON, or is neither a list nor an object, is an error.
func ResolveFieldIDs(raw json.RawMessage) (ids []string, rejected []string, err error) {
	ids = []string{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ids, nil, nil
	}

	var candidates []string
	switch raw[0] {
	case '[':
		candidates, err = listCandidates(raw)
	case '{':
		candidates, err = categoryCandidates(raw)
	default:
		err = fmt.Errorf("unsupported fields configuration: expected a list or a map of lists")
	}
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		id := strings.TrimSpace(candidate)
		if !zuva.IsFieldID(id) {
			rejected = append(rejected, candidate)
			continue
		}
		key := strings.ToLower(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rejected, nil
}

// categoryCandidates walks a category map in document order; json maps lose ordering.
// A category whose value is not a list is skipped and reported as a rejected candidate.
func categoryCandidates(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read fields configuration: %w", err)
	}

	var out []string
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read fields configuration: %w", err)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to read category %v: %w", key, err)
		}
		value = bytes.TrimSpace(value)
		if len(value) == 0 || value[0] != '[' {
			out = append(out, fmt.Sprintf("%v: %s", key, value))
			continue
		}
		ids, err := listCandidates(value)
		if err != nil {
			return nil, fmt.Errorf("category %v: %w", key, err)
		}
		out = append(out, ids...)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read fields configuration: %w", err)
	}
	return out, nil
}

// listCandidates returns one candidate per list entry. Only invalid JSON is an error;
// entries of the wrong type come back as their raw text and fail the UUID check.
func listCandidates(raw json.RawMessage) ([]string, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid fields list: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 {
			continue
		}
		switch entry[0] {
		case '"':
			out = append(out, stringValue(entry))
		case '{':
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(entry, &obj); err != nil {
				out = append(out, string(entry))
				continue
			}
			out = append(out, objectFieldID(obj))
		default:
			out = append(out, string(entry))
		}
	}
	return out, nil
}

// objectFieldID prefers a non-empty fieldId and falls back to field_id
func objectFieldID(obj map[string]json.RawMessage) string {
	var fallback string
	for _, key := range []string{"fieldId", "field_id"} {
		value, ok := obj[key]
		if !ok {
			continue
		}
		value = bytes.TrimSpace(value)
		if len(value) == 0 || bytes.Equal(value, []byte("null")) {
			continue
		}
		if value[0] != '"' {
			if fallback == "" {
				fallback = string(value)
			}
			continue
		}
		if id := stringValue(value); strings.TrimSpace(id) != "" {
			return id
		}
	}
	return fallback
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
