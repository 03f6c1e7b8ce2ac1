package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ternarybob/extracta/internal/app"
	"github.com/ternarybob/extracta/internal/services/fields"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Manage the local field catalogue",
}

var fieldsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the provider field catalogue into the local store",
	RunE:  runFieldsSync,
}

var fieldsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fields from the local store",
	RunE:  runFieldsList,
}

var fieldsQuery string

func init() {
	fieldsListCmd.Flags().StringVarP(&fieldsQuery, "query", "q", "", "Filter by name, description, tag or field id")
	fieldsCmd.AddCommand(fieldsSyncCmd, fieldsListCmd)
}

func runFieldsSync(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	count, err := application.FieldService.Sync(context.Background())
	if err != nil {
		return fmt.Errorf("field catalogue sync failed: %w", err)
	}

	fmt.Printf("Synced %d fields\n", count)
	return nil
}

func runFieldsList(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	list, err := application.FieldService.List(context.Background(), false, fields.Filter{Query: fieldsQuery})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD ID\tNAME\tTYPE")
	for _, field := range list {
		kind := "text"
		if field.IsClassification() {
			kind = "classification"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", field.FieldID, field.Name, kind)
	}
	return w.Flush()
}
