package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/extracta/internal/app"
	"github.com/ternarybob/extracta/internal/documents"
	"github.com/ternarybob/extracta/internal/services/extraction"
	"github.com/ternarybob/extracta/internal/services/workflows"
	"github.com/ternarybob/extracta/internal/zuva"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run a one-shot extraction against the provider and print the results",
	Long: `Uploads a local file, submits the requested fields, waits for completion and prints
the normalized results as JSON. Nothing is stored.`,
	RunE: runExtract,
}

var (
	extractFile     string
	extractFields   []string
	extractWorkflow string
)

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "Document to extract from")
	extractCmd.Flags().StringSliceVar(&extractFields, "fields", nil, "Field ids to extract (comma separated)")
	extractCmd.Flags().StringVarP(&extractWorkflow, "workflow", "w", "", "Workflow definition file supplying the field ids")
	extractCmd.MarkFlagRequired("file")
}

func runExtract(cmd *cobra.Command, args []string) error {
	fieldIDs, err := extractFieldIDs()
	if err != nil {
		return err
	}

	client, err := app.NewProviderClient(context.Background(), config, logger)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("no provider credentials configured (provider.api_token or provider.oauth)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := documents.NewResolver("", nil, logger)
	info, err := resolver.Inspect(ctx, extractFile)
	if err != nil {
		return err
	}
	logger.Info().
		Str("file", info.Name).
		Int64("size", info.Size).
		Str("mime_type", info.MIMEType).
		Int("pages", info.Pages).
		Msg("Document inspected")

	budgets := extraction.NewConfig(config.Extraction)

	uploadCtx, cancel := context.WithTimeout(ctx, budgets.UploadTimeout)
	fileID, err := client.Upload(uploadCtx, info.Name, zuva.Opener(resolver.Open(info.Path)))
	cancel()
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	logger.Info().Str("file_id", fileID).Msg("Document uploaded")

	submitCtx, cancel := context.WithTimeout(ctx, budgets.SubmitTimeout)
	requestID, err := client.Submit(submitCtx, []string{fileID}, fieldIDs)
	cancel()
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	logger.Info().Str("request_id", requestID).Int("fields", len(fieldIDs)).Msg("Extraction submitted")

	if _, err := client.WaitForCompletion(ctx, requestID, budgets.MaxWait, budgets.PollInterval); err != nil {
		return fmt.Errorf("extraction did not complete: %w", err)
	}

	raw, err := client.FetchResults(ctx, requestID)
	if err != nil {
		return fmt.Errorf("fetching results failed: %w", err)
	}
	parsed, err := zuva.Parse(raw)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(map[string]interface{}{
		"document":        info,
		"file_id":         fileID,
		"request_id":      requestID,
		"results":         parsed.Results,
		"answer_metadata": parsed.AnswerMetadata,
	})
}

// extractFieldIDs merges --fields and the ids of --workflow, dropping invalid ids
func extractFieldIDs() ([]string, error) {
	candidates := append([]string{}, extractFields...)

	if extractWorkflow != "" {
		workflow, err := workflows.ParseFile(extractWorkflow)
		if err != nil {
			return nil, err
		}
		ids, rejected, err := extraction.ResolveFieldIDs(workflow.Fields)
		if err != nil {
			return nil, err
		}
		if len(rejected) > 0 {
			logger.Warn().Str("invalid_ids", zuva.SummarizeIDs(rejected, 5)).Msg("Dropping invalid field ids from workflow")
		}
		candidates = append(candidates, ids...)
	}

	raw, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}
	ids, rejected, err := extraction.ResolveFieldIDs(raw)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		logger.Warn().Str("invalid_ids", zuva.SummarizeIDs(rejected, 5)).Msg("Dropping invalid field ids")
	}
	if len(ids) == 0 {
		return nil, errors.New("no valid field ids: pass --fields or --workflow")
	}
	return ids, nil
}
