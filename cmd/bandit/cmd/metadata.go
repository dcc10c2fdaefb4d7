package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Read and write job metadata",
	Long: `Commands for the running job's metadata document. Every change rewrites the
whole document on the job volume.`,
	PersistentPreRunE: requireClient,
}

var metadataSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a metadata key",
	Long: `Set a metadata key. The value is parsed as JSON; anything that is not valid
JSON is stored as a string.`,
	Args: cobra.ExactArgs(2),
	RunE: runMetadataSet,
}

var metadataGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a metadata value",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetadataGet,
}

var metadataDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a metadata key",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetadataDelete,
}

var metadataShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the whole metadata document",
	Args:  cobra.NoArgs,
	RunE:  runMetadataShow,
}

func init() {
	rootCmd.AddCommand(metadataCmd)
	metadataCmd.AddCommand(metadataSetCmd)
	metadataCmd.AddCommand(metadataGetCmd)
	metadataCmd.AddCommand(metadataDeleteCmd)
	metadataCmd.AddCommand(metadataShowCmd)
}

func runMetadataSet(cmd *cobra.Command, args []string) error {
	var value any
	if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
		value = args[1]
	}
	if err := client.Metadata().Set(args[0], value); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	return nil
}

func runMetadataGet(cmd *cobra.Command, args []string) error {
	value, ok := client.Metadata().Get(args[0])
	if !ok {
		return fmt.Errorf("metadata key %q not found", args[0])
	}
	return printOutput(cmd.OutOrStdout(), value, func(t *tablewriter.Table) {
		t.Header("Key", "Value")
		t.Append(args[0], formatValue(value))
	})
}

func runMetadataDelete(cmd *cobra.Command, args []string) error {
	if err := client.Metadata().Delete(args[0]); err != nil {
		return fmt.Errorf("failed to delete %s: %w", args[0], err)
	}
	return nil
}

func runMetadataShow(cmd *cobra.Command, args []string) error {
	doc := client.Metadata().Snapshot()
	return printOutput(cmd.OutOrStdout(), doc, recordTable(doc))
}
