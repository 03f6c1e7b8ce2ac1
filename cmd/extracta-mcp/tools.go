package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createStartExtractionTool returns the start_extraction tool definition
func createStartExtractionTool() mcp.Tool {
	return mcp.NewTool("start_extraction",
		mcp.WithDescription("Start extracting a workflow's fields from a document. Returns immediately; poll get_extraction_status."),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document identifier"),
		),
		mcp.WithString("workflow_id",
			mcp.Required(),
			mcp.Description("Workflow to apply (see list_workflows)"),
		),
		mcp.WithString("document_path",
			mcp.Description("Path of the document relative to the server's documents directory (default: the document id)"),
		),
	)
}

// createGetExtractionStatusTool returns the get_extraction_status tool definition
func createGetExtractionStatusTool() mcp.Tool {
	return mcp.NewTool("get_extraction_status",
		mcp.WithDescription("Get the status of a document's extraction for a workflow"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document identifier"),
		),
		mcp.WithString("workflow_id",
			mcp.Required(),
			mcp.Description("Workflow identifier"),
		),
	)
}

// createGetExtractionResultsTool returns the get_extraction_results tool definition
func createGetExtractionResultsTool() mcp.Tool {
	return mcp.NewTool("get_extraction_results",
		mcp.WithDescription("Get the extracted field values of a completed extraction as a markdown table"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document identifier"),
		),
		mcp.WithString("workflow_id",
			mcp.Description("Workflow identifier (omit to report every workflow extracted for the document)"),
		),
	)
}

// createCancelExtractionTool returns the cancel_extraction tool definition
func createCancelExtractionTool() mcp.Tool {
	return mcp.NewTool("cancel_extraction",
		mcp.WithDescription("Cancel a running extraction"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document identifier"),
		),
		mcp.WithString("workflow_id",
			mcp.Required(),
			mcp.Description("Workflow identifier"),
		),
	)
}

// createListFieldsTool returns the list_fields tool definition
func createListFieldsTool() mcp.Tool {
	return mcp.NewTool("list_fields",
		mcp.WithDescription("Search the provider field catalogue by name, description or tag"),
		mcp.WithString("query",
			mcp.Description("Case-insensitive search text (empty lists every field)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum fields to return (default: 50, max: 500)"),
		),
	)
}

// createListWorkflowsTool returns the list_workflows tool definition
func createListWorkflowsTool() mcp.Tool {
	return mcp.NewTool("list_workflows",
		mcp.WithDescription("List the configured extraction workflows"),
	)
}
