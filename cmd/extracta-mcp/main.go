package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/httpclient"
)

func main() {
	baseURL := os.Getenv("EXTRACTA_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8085"
	}

	timeout := 30 * time.Second
	if raw := os.Getenv("EXTRACTA_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid EXTRACTA_TIMEOUT %q: %v\n", raw, err)
			os.Exit(1)
		}
		timeout = parsed
	}

	// Console only, warn level: stdout belongs to the MCP transport
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")
	common.SetLogger(logger)

	client := httpclient.NewClient(baseURL, httpclient.NewDefaultHTTPClient(timeout))

	mcpServer := server.NewMCPServer(
		"extracta",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Extraction tools
	mcpServer.AddTool(createStartExtractionTool(), handleStartExtraction(client, logger))
	mcpServer.AddTool(createGetExtractionStatusTool(), handleGetExtractionStatus(client, logger))
	mcpServer.AddTool(createGetExtractionResultsTool(), handleGetExtractionResults(client, logger))
	mcpServer.AddTool(createCancelExtractionTool(), handleCancelExtraction(client, logger))

	// Catalogue tools
	mcpServer.AddTool(createListFieldsTool(), handleListFields(client, logger))
	mcpServer.AddTool(createListWorkflowsTool(), handleListWorkflows(client, logger))

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
