package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/extracta/internal/httpclient"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
	"github.com/ternarybob/extracta/internal/services/report"
)

// formatStarted formats an accepted start request as markdown
func formatStarted(started *httpclient.StartResponse) string {
	var sb strings.Builder
	sb.WriteString("## Extraction Started\n\n")
	sb.WriteString(fmt.Sprintf("**Job:** %s\n", started.ID))
	sb.WriteString(fmt.Sprintf("**Document:** %s\n", started.DocumentID))
	sb.WriteString(fmt.Sprintf("**Workflow:** %s\n", started.WorkflowID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", started.Status))
	sb.WriteString(fmt.Sprintf("**Attempt:** %d\n", started.Attempt))
	sb.WriteString(fmt.Sprintf("**Fields:** %d\n", started.FieldCount))
	return sb.String()
}

// formatStatus formats a job summary as markdown
func formatStatus(summary *extraction.StatusSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Extraction %s\n\n", summary.Status))
	sb.WriteString(fmt.Sprintf("**Document:** %s\n", summary.DocumentID))
	sb.WriteString(fmt.Sprintf("**Workflow:** %s\n", summary.WorkflowID))
	sb.WriteString(fmt.Sprintf("**Attempt:** %d\n", summary.Attempt))
	sb.WriteString(fmt.Sprintf("**Fields:** %d\n", summary.FieldCount))
	if summary.ProviderRequestID != "" {
		sb.WriteString(fmt.Sprintf("**Provider Request:** %s\n", summary.ProviderRequestID))
	}
	if summary.StartedAt != nil {
		sb.WriteString(fmt.Sprintf("**Started:** %s\n", summary.StartedAt.Format(time.RFC3339)))
	}
	if summary.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("**Completed:** %s\n", summary.CompletedAt.Format(time.RFC3339)))
	}
	if summary.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", summary.ErrorMessage))
	}
	return sb.String()
}

// formatResults formats a results view as a markdown report
func formatResults(view *extraction.ResultsView) string {
	if view.Status != models.JobStatusComplete {
		msg := fmt.Sprintf("Extraction is %s; results are available once it completes.\n", view.Status)
		if view.ErrorMessage != "" {
			msg += fmt.Sprintf("\n**Error:** %s\n", view.ErrorMessage)
		}
		return msg
	}
	return report.Markdown(view, nil)
}

// formatResultsList formats every workflow's results for a document
func formatResultsList(documentID string, views []*extraction.ResultsView) string {
	if len(views) == 0 {
		return fmt.Sprintf("No extractions found for %s.\n", documentID)
	}

	parts := make([]string, 0, len(views))
	for _, view := range views {
		if view.Status != models.JobStatusComplete {
			parts = append(parts, fmt.Sprintf("# %s\n\n%s", view.WorkflowID, formatResults(view)))
			continue
		}
		parts = append(parts, formatResults(view))
	}
	return strings.Join(parts, "\n---\n\n")
}

// formatFields formats catalogue fields as markdown, at most limit entries
func formatFields(query string, fields []*models.FieldDefinition, limit int) string {
	var sb strings.Builder
	if query != "" {
		sb.WriteString(fmt.Sprintf("## Fields matching \"%s\" (%d results)\n\n", query, len(fields)))
	} else {
		sb.WriteString(fmt.Sprintf("## Fields (%d)\n\n", len(fields)))
	}

	if len(fields) == 0 {
		sb.WriteString("No fields found. Run `extracta fields sync` to populate the catalogue.\n")
		return sb.String()
	}

	for i, field := range fields {
		if i >= limit {
			sb.WriteString(fmt.Sprintf("\n...and %d more\n", len(fields)-limit))
			break
		}
		sb.WriteString(fmt.Sprintf("- **%s** `%s`", field.Name, field.FieldID))
		if field.IsClassification() {
			sb.WriteString(" (classification)")
		}
		if field.Description != "" {
			sb.WriteString(": " + field.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatWorkflows formats workflow definitions as markdown
func formatWorkflows(workflows []*models.Workflow) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Workflows (%d)\n\n", len(workflows)))

	if len(workflows) == 0 {
		sb.WriteString("No workflows configured.\n")
		return sb.String()
	}

	for _, wf := range workflows {
		sb.WriteString(fmt.Sprintf("### %s\n", wf.Name))
		sb.WriteString(fmt.Sprintf("**ID:** %s\n", wf.ID))
		if wf.Description != "" {
			sb.WriteString(wf.Description + "\n")
		}
		ids, rejected, err := extraction.ResolveFieldIDs(wf.Fields)
		if err != nil {
			sb.WriteString(fmt.Sprintf("**Fields:** invalid (%v)\n\n", err))
			continue
		}
		sb.WriteString(fmt.Sprintf("**Fields:** %d\n", len(ids)))
		if len(rejected) > 0 {
			sb.WriteString(fmt.Sprintf("**Rejected:** %s\n", strings.Join(rejected, ", ")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
