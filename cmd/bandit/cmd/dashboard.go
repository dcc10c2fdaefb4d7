package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psantana5/bandit/pkg/dashboard"
)

var (
	dashboardTemplate string
	dashboardVars     []string
	dashboardFiles    []string
	dashboardTables   []string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <name>",
	Short: "Render an HTML dashboard",
	Long: `Render an HTML dashboard into the job's output files. Outside a job the HTML
is printed.

Variables are HTML fragments given inline (--var key=html), read from files
(--file key=path) or built from CSV tables (--table key=path). Repeating a
key collects the values into a list.

Built-in templates: ` + strings.Join(dashboard.Templates(), ", "),
	Args:    cobra.ExactArgs(1),
	PreRunE: requireClient,
	RunE:    runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().StringVar(&dashboardTemplate, "template", dashboard.DefaultTemplate, "template file or built-in template name")
	dashboardCmd.Flags().StringArrayVar(&dashboardVars, "var", nil, "key=html variable (repeatable)")
	dashboardCmd.Flags().StringArrayVar(&dashboardFiles, "file", nil, "key=path variable read from a file (repeatable)")
	dashboardCmd.Flags().StringArrayVar(&dashboardTables, "table", nil, "key=path.csv table variable (repeatable)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	vars := map[string]any{}

	for _, kv := range dashboardVars {
		key, value, err := splitVar(kv)
		if err != nil {
			return err
		}
		addVar(vars, key, value)
	}
	for _, kv := range dashboardFiles {
		key, path, err := splitVar(kv)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		addVar(vars, key, string(data))
	}
	for _, kv := range dashboardTables {
		key, path, err := splitVar(kv)
		if err != nil {
			return err
		}
		table, err := dashboard.LoadCSV(path)
		if err != nil {
			return fmt.Errorf("failed to load table %s: %w", path, err)
		}
		addVar(vars, key, table)
	}

	path, err := dashboard.Make(client, args[0], dashboardTemplate, vars)
	if err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard written to %s\n", path)
	}
	return nil
}

func splitVar(kv string) (string, string, error) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid variable %q, want key=value", kv)
	}
	return key, value, nil
}

// addVar stores value under key, turning repeated keys into a list.
func addVar(vars map[string]any, key string, value any) {
	existing, ok := vars[key]
	if !ok {
		vars[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		vars[key] = append(list, value)
		return
	}
	vars[key] = []any{existing, value}
}
