package zuva

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/extracta/internal/models"
)

type rawPayload struct {
	Results []json.RawMessage `json:"results"`
}

type rawResult struct {
	FieldID     string            `json:"field_id"`
	FieldName   string            `json:"field_name"`
	FileID      string            `json:"file_id"`
	Extractions []json.RawMessage `json:"extractions"`
	Answers     json.RawMessage   `json:"answers"`
}

type rawExtraction struct {
	Text       string          `json:"text"`
	Page       *float64        `json:"page"`
	Confidence *float64        `json:"confidence"`
	BBox       json.RawMessage `json:"bbox"`
	Spans      json.RawMessage `json:"spans"`
}

type rawSpan struct {
	Pages *struct {
		Start *float64 `json:"start"`
	} `json:"pages"`
	Score  *float64 `json:"score"`
	BBoxes []struct {
		Bounds []rawBound `json:"bounds"`
	} `json:"bboxes"`
}

type rawBound struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

func (b rawBound) box() *models.BoundingBox {
	return &models.BoundingBox{b.Left, b.Bottom, b.Right, b.Top}
}

// Parse normalizes a results payload into per-field extractions and answer metadata.
//
// Fields carrying answers are classification fields and appear only in AnswerMetadata.
// Other fields always get an entry in Results, empty when nothing was found.
// Page numbers are converted from the provider's 0-indexed pages to 1-indexed.
func Parse(raw []byte) (*ParsedResults, error) {
	parsed := &ParsedResults{
		Results:        map[string][]models.Extraction{},
		AnswerMetadata: map[string]*models.AnswerMetadata{},
	}

	if isNull(raw) {
		return parsed, nil
	}

	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode extraction results: %w", err)
	}

	for _, item := range payload.Results {
		var result rawResult
		if err := json.Unmarshal(item, &result); err != nil || result.FieldID == "" {
			continue
		}

		if !isNull(result.Answers) {
			meta, ok := parsed.AnswerMetadata[result.FieldID]
			if !ok {
				meta = &models.AnswerMetadata{FieldName: result.FieldName, Answers: []models.Answer{}}
				parsed.AnswerMetadata[result.FieldID] = meta
			}
			if meta.FieldName == "" {
				meta.FieldName = result.FieldName
			}
			meta.Answers = append(meta.Answers, decodeAnswers(result.Answers)...)
			meta.HasAnswers = true
			continue
		}

		extractions, ok := parsed.Results[result.FieldID]
		if !ok {
			extractions = []models.Extraction{}
		}
		for _, rawExt := range result.Extractions {
			if ext, ok := parseExtraction(rawExt); ok {
				extractions = append(extractions, ext)
			}
		}
		parsed.Results[result.FieldID] = extractions
	}

	return parsed, nil
}

func parseExtraction(raw json.RawMessage) (models.Extraction, bool) {
	var ext rawExtraction
	if err := json.Unmarshal(raw, &ext); err != nil {
		return models.Extraction{}, false
	}

	var first *rawSpan
	var spans []rawSpan
	if !isNull(ext.Spans) && json.Unmarshal(ext.Spans, &spans) == nil && len(spans) > 0 {
		first = &spans[0]
	}

	out := models.Extraction{
		Text:       ext.Text,
		Confidence: ext.Confidence,
		Spans:      ext.Spans,
	}
	if isNull(out.Spans) {
		out.Spans = json.RawMessage("[]")
	}

	page := ext.Page
	if page == nil && first != nil && first.Pages != nil {
		page = first.Pages.Start
	}
	if page != nil {
		p := int(*page) + 1
		out.Page = &p
	}

	if out.Confidence == nil && first != nil {
		out.Confidence = first.Score
	}

	out.BoundingBox = decodeBoundingBox(ext.BBox)
	if out.BoundingBox == nil && first != nil && len(first.BBoxes) > 0 && len(first.BBoxes[0].Bounds) > 0 {
		out.BoundingBox = first.BBoxes[0].Bounds[0].box()
	}

	return out, true
}

// decodeBoundingBox accepts [left, bottom, right, top] or a {top,left,bottom,right} object
func decodeBoundingBox(raw json.RawMessage) *models.BoundingBox {
	if isNull(raw) {
		return nil
	}

	var arr []float64
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 4 {
			return nil
		}
		return &models.BoundingBox{arr[0], arr[1], arr[2], arr[3]}
	}

	var bound rawBound
	if err := json.Unmarshal(raw, &bound); err == nil {
		return bound.box()
	}
	return nil
}

// decodeAnswers reads the classifier output, tolerating a single object and
// non-string values
func decodeAnswers(raw json.RawMessage) []models.Answer {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		raw = append(append([]byte{'['}, raw...), ']')
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	answers := make([]models.Answer, 0, len(entries))
	for _, e := range entries {
		answers = append(answers, models.Answer{
			Option: valueString(e, "option", "key"),
			Value:  valueString(e, "value", "text", "label"),
		})
	}
	return answers
}

func valueString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return fmt.Sprintf("%g", t)
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// BoundingBoxFromSpans derives a bounding box from the first span's first bound.
// Used to backfill records stored without a derived box.
func BoundingBoxFromSpans(spans json.RawMessage) *models.BoundingBox {
	if isNull(spans) {
		return nil
	}
	var decoded []rawSpan
	if err := json.Unmarshal(spans, &decoded); err != nil || len(decoded) == 0 {
		return nil
	}
	first := decoded[0]
	if len(first.BBoxes) == 0 || len(first.BBoxes[0].Bounds) == 0 {
		return nil
	}
	return first.BBoxes[0].Bounds[0].box()
}
