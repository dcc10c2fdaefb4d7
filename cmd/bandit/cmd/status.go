package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/bandit/pkg/bandit"
)

var statusCmd = &cobra.Command{
	Use:   "status <success|failed>",
	Short: "Print the export that sets the job's final status",
	Long: `Validate a final job status and print the shell export that sets it, for use
as: eval "$(bandit status failed)".`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(bandit.StatusSuccess), string(bandit.StatusFailed)},
	PreRunE:   requireClient,
	RunE:      runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := bandit.Status(args[0])
	if err := client.SetStatus(status); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", bandit.EnvJobStatus, status)
	return nil
}
