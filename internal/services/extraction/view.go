package extraction

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/zuva"
)

// FieldMetadata describes a field from the synced catalogue
type FieldMetadata struct {
	FieldID     string   `json:"field_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Region      string   `json:"region"`
	Tags        []string `json:"tags"`
}

// FieldView is one field of a results view
type FieldView struct {
	Metadata      FieldMetadata       `json:"metadata"`
	Extractions   []models.Extraction `json:"extractions"`
	HasAnswers    bool                `json:"has_answers"`
	FieldName     string              `json:"field_name,omitempty"`
	Answers       []models.Answer     `json:"answers,omitempty"`
	AnswerOptions map[string]string   `json:"answer_options,omitempty"`
}

// ResultsView is the caller-facing shape of an extraction job
type ResultsView struct {
	JobID        string                `json:"id"`
	DocumentID   string                `json:"document_id"`
	WorkflowID   string                `json:"workflow_id"`
	WorkflowName string                `json:"workflow_name,omitempty"`
	Status       models.JobStatus      `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	ExtractedAt  *time.Time            `json:"extracted_at,omitempty"`
	FieldCount   int                   `json:"field_count"`
	Fields       map[string]*FieldView `json:"fields,omitempty"`
}

// FieldIDs returns the view's field ids in workflow order, unknown ids last and sorted
func (v *ResultsView) FieldIDs(order []string) []string {
	ids := make([]string, 0, len(v.Fields))
	seen := make(map[string]bool, len(v.Fields))
	for _, id := range order {
		if _, ok := v.Fields[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range v.Fields {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func (s *Service) localCatalogue(ctx context.Context) map[string]*models.FieldDefinition {
	fields, err := s.fields.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not load field catalogue for results view")
		return nil
	}
	catalogue := make(map[string]*models.FieldDefinition, len(fields))
	for _, field := range fields {
		catalogue[field.FieldID] = field
	}
	return catalogue
}

func (s *Service) buildView(ctx context.Context, job *models.ExtractionJob, catalogue map[string]*models.FieldDefinition) *ResultsView {
	view := &ResultsView{
		JobID:        job.ID,
		DocumentID:   job.DocumentID,
		WorkflowID:   job.WorkflowID,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		ExtractedAt:  job.CompletedAt,
	}

	if workflow, err := s.workflows.Get(ctx, job.WorkflowID); err == nil {
		view.WorkflowName = workflow.Name
	} else if !errors.Is(err, interfaces.ErrWorkflowNotFound) {
		s.logger.Warn().Err(err).Str("workflow_id", job.WorkflowID).Msg("Could not load workflow for results view")
	}

	if job.Status != models.JobStatusComplete {
		return view
	}

	view.Fields = make(map[string]*FieldView, len(job.Results)+len(job.AnswerMetadata))
	for fieldID, extractions := range job.Results {
		view.Fields[fieldID] = &FieldView{
			Metadata:    fieldMetadata(fieldID, catalogue),
			Extractions: backfillBoundingBoxes(extractions),
		}
	}
	for fieldID, meta := range job.AnswerMetadata {
		if meta == nil {
			continue
		}
		field, ok := view.Fields[fieldID]
		if !ok {
			field = &FieldView{
				Metadata:    fieldMetadata(fieldID, catalogue),
				Extractions: []models.Extraction{},
			}
			view.Fields[fieldID] = field
		}
		field.HasAnswers = true
		field.FieldName = meta.FieldName
		field.Answers = meta.Answers
		if field.Answers == nil {
			field.Answers = []models.Answer{}
		}
		field.AnswerOptions = meta.AnswerOptions
		if field.AnswerOptions == nil {
			field.AnswerOptions = map[string]string{}
		}
	}
	view.FieldCount = len(view.Fields)
	return view
}

func fieldMetadata(fieldID string, catalogue map[string]*models.FieldDefinition) FieldMetadata {
	meta := FieldMetadata{FieldID: fieldID, Name: fieldID, Type: "text", Tags: []string{}}
	field, ok := catalogue[fieldID]
	if !ok {
		return meta
	}
	if field.Name != "" {
		meta.Name = field.Name
	}
	if field.Type != "" {
		meta.Type = field.Type
	}
	meta.Description = field.Description
	meta.Region = field.Region
	if len(field.Tags) > 0 {
		meta.Tags = field.Tags
	}
	return meta
}

// backfillBoundingBoxes derives missing boxes from spans; stored lists decode as nil when empty
func backfillBoundingBoxes(extractions []models.Extraction) []models.Extraction {
	out := make([]models.Extraction, len(extractions))
	for i, e := range extractions {
		if e.BoundingBox == nil && len(e.Spans) > 0 {
			e.BoundingBox = zuva.BoundingBoxFromSpans(e.Spans)
		}
		out[i] = e
	}
	return out
}
