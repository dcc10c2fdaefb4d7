package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Use database connections saved on Bandit",
	Long: `Bandit passes saved database connection strings to jobs as DATABASE_<name>
environment variables.`,
	PersistentPreRunE: requireClient,
}

var connectionGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a connection string",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionGet,
}

var connectionPingCmd = &cobra.Command{
	Use:   "ping <name>",
	Short: "Open a connection and check it is reachable",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionPing,
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionGetCmd)
	connectionCmd.AddCommand(connectionPingCmd)
}

func runConnectionGet(cmd *cobra.Command, args []string) error {
	dsn := client.GetConnection(args[0])
	if dsn == "" {
		return fmt.Errorf("no connection named %q", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), dsn)
	return nil
}

func runConnectionPing(cmd *cobra.Command, args []string) error {
	start := time.Now()
	db, err := client.OpenConnection(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	elapsed := time.Since(start)
	result := map[string]any{"name": args[0], "ok": true, "elapsed_ms": elapsed.Milliseconds()}
	return printOutput(cmd.OutOrStdout(), result, func(t *tablewriter.Table) {
		t.Header("Connection", "Status", "Elapsed")
		t.Append(args[0], "OK", elapsed.Round(time.Millisecond).String())
	})
}
