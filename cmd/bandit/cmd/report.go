package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var reportX float64

var reportCmd = &cobra.Command{
	Use:   "report <tag> <value>",
	Short: "Report a metric point for the running job",
	Long: `Report a metric value. Inside a Bandit job the point is appended to the job's
charts log and sent to the server; anywhere else it is only printed.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: requireClient,
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Float64Var(&reportX, "x", 0, "x value of the point")
}

func runReport(cmd *cobra.Command, args []string) error {
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("value %q is not a number", args[1])
	}

	ack, err := client.ReportPoint(cmd.Context(), args[0], reportX, y)
	if err != nil {
		return fmt.Errorf("failed to report %s: %w", args[0], err)
	}
	if client.Config().HasJob() {
		return printOutput(cmd.OutOrStdout(), ack, recordTable(ack))
	}
	return nil
}
