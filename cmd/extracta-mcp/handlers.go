package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/httpclient"
	"github.com/ternarybob/extracta/internal/models"
	"github.com/ternarybob/extracta/internal/services/extraction"
)

// ExtractaAPI is the subset of the API client the tools call
type ExtractaAPI interface {
	StartExtraction(ctx context.Context, documentID, workflowID, documentPath string) (*httpclient.StartResponse, error)
	GetStatus(ctx context.Context, documentID, workflowID string) (*extraction.StatusSummary, error)
	GetResults(ctx context.Context, documentID, workflowID string) (*extraction.ResultsView, error)
	ListResults(ctx context.Context, documentID string) ([]*extraction.ResultsView, error)
	Cancel(ctx context.Context, documentID, workflowID string) (bool, error)
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
	ListFields(ctx context.Context, query string) ([]*models.FieldDefinition, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}

// requirePair reads the document_id and workflow_id arguments
func requirePair(request mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	documentID, err := request.RequireString("document_id")
	if err != nil || documentID == "" {
		return "", "", errorResult("Error: document_id parameter is required")
	}
	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return "", "", errorResult("Error: workflow_id parameter is required")
	}
	return documentID, workflowID, nil
}

// handleStartExtraction implements the start_extraction tool
func handleStartExtraction(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, workflowID, failure := requirePair(request)
		if failure != nil {
			return failure, nil
		}
		documentPath := request.GetString("document_path", "")

		started, err := client.StartExtraction(ctx, documentID, workflowID, documentPath)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Str("workflow_id", workflowID).Msg("Start extraction failed")
			return errorResult(fmt.Sprintf("Start extraction error: %v", err)), nil
		}

		return textResult(formatStarted(started)), nil
	}
}

// handleGetExtractionStatus implements the get_extraction_status tool
func handleGetExtractionStatus(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, workflowID, failure := requirePair(request)
		if failure != nil {
			return failure, nil
		}

		summary, err := client.GetStatus(ctx, documentID, workflowID)
		if errors.Is(err, extraction.ErrNotStarted) {
			return textResult(fmt.Sprintf("No extraction of %s with workflow %s has been started.", documentID, workflowID)), nil
		}
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Get extraction status failed")
			return errorResult(fmt.Sprintf("Status error: %v", err)), nil
		}

		return textResult(formatStatus(summary)), nil
	}
}

// handleGetExtractionResults implements the get_extraction_results tool
func handleGetExtractionResults(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := request.RequireString("document_id")
		if err != nil || documentID == "" {
			return errorResult("Error: document_id parameter is required"), nil
		}
		workflowID := request.GetString("workflow_id", "")

		if workflowID == "" {
			views, err := client.ListResults(ctx, documentID)
			if err != nil {
				logger.Error().Err(err).Str("document_id", documentID).Msg("List extraction results failed")
				return errorResult(fmt.Sprintf("Results error: %v", err)), nil
			}
			return textResult(formatResultsList(documentID, views)), nil
		}

		view, err := client.GetResults(ctx, documentID, workflowID)
		if errors.Is(err, extraction.ErrNotStarted) {
			return textResult(fmt.Sprintf("No extraction of %s with workflow %s has been started.", documentID, workflowID)), nil
		}
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Get extraction results failed")
			return errorResult(fmt.Sprintf("Results error: %v", err)), nil
		}

		return textResult(formatResults(view)), nil
	}
}

// handleCancelExtraction implements the cancel_extraction tool
func handleCancelExtraction(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, workflowID, failure := requirePair(request)
		if failure != nil {
			return failure, nil
		}

		cancelled, err := client.Cancel(ctx, documentID, workflowID)
		if err != nil {
			logger.Error().Err(err).Str("document_id", documentID).Msg("Cancel extraction failed")
			return errorResult(fmt.Sprintf("Cancel error: %v", err)), nil
		}
		if !cancelled {
			return textResult("No active extraction to cancel."), nil
		}
		return textResult("Extraction cancelled."), nil
	}
}

// handleListFields implements the list_fields tool
func handleListFields(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := request.GetString("query", "")

		limit := request.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}

		fieldList, err := client.ListFields(ctx, query)
		if err != nil {
			logger.Error().Err(err).Msg("List fields failed")
			return errorResult(fmt.Sprintf("List fields error: %v", err)), nil
		}

		return textResult(formatFields(query, fieldList, limit)), nil
	}
}

// handleListWorkflows implements the list_workflows tool
func handleListWorkflows(client ExtractaAPI, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := client.ListWorkflows(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List workflows failed")
			return errorResult(fmt.Sprintf("List workflows error: %v", err)), nil
		}
		return textResult(formatWorkflows(list)), nil
	}
}
