package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/bandit/pkg/bandit"
)

var (
	// jobs results flags
	statusFilter string

	// jobs run flags
	waitForJob bool
	jobTimeout time.Duration

	// jobs file flags
	fileRun string
	fileOut string
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs",
	Long:  `Commands for listing, running and watching jobs on a Bandit server.`,
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List jobs",
	Args:    cobra.NoArgs,
	PreRunE: requireClient,
	RunE:    runJobsList,
}

var jobsResultsCmd = &cobra.Command{
	Use:     "results",
	Short:   "List job results",
	Args:    cobra.NoArgs,
	PreRunE: requireClient,
	RunE:    runJobsResults,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <project> <job>",
	Short: "Run a job",
	Long: `Trigger a job of one of your projects. With --wait the command polls job
results every 2 seconds until the run succeeds or fails, or --timeout elapses.`,
	Args:    cobra.ExactArgs(2),
	PreRunE: requireClient,
	RunE:    runJobsRun,
}

var jobsSeriesCmd = &cobra.Command{
	Use:   "series <file>",
	Short: "Run jobs one after another",
	Long: `Run the jobs listed in a YAML, TOML or JSON file in order, waiting for each
to finish before starting the next. The series stops at the first job that
fails or times out.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: requireClient,
	RunE:    runJobsSeries,
}

var jobsFileCmd = &cobra.Command{
	Use:     "file <user> <project> <job> <filename>",
	Short:   "Download an output file of a job run",
	Args:    cobra.ExactArgs(4),
	PreRunE: requireClient,
	RunE:    runJobsFile,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsResultsCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	jobsCmd.AddCommand(jobsSeriesCmd)
	jobsCmd.AddCommand(jobsFileCmd)

	jobsResultsCmd.Flags().StringVar(&statusFilter, "status", "", "only show results with this status")

	jobsRunCmd.Flags().BoolVar(&waitForJob, "wait", false, "poll job results until the run finishes")
	jobsRunCmd.Flags().DurationVar(&jobTimeout, "timeout", bandit.DefaultTimeout, "how long to wait for the run")

	jobsSeriesCmd.Flags().DurationVar(&jobTimeout, "timeout", bandit.DefaultTimeout, "default timeout per job")

	jobsFileCmd.Flags().StringVar(&fileRun, "n", "latest", "run number")
	jobsFileCmd.Flags().StringVar(&fileOut, "out", "", "write the file here instead of stdout")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	jobs, err := client.GetJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if client.IsLocal() {
		return nil
	}
	if jobs == nil {
		jobs = []bandit.Job{}
	}
	return printOutput(cmd.OutOrStdout(), jobs, jobsTable(jobs))
}

func runJobsResults(cmd *cobra.Command, args []string) error {
	results, err := client.GetJobResults(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list job results: %w", err)
	}
	if client.IsLocal() {
		return nil
	}
	filtered := make([]bandit.JobResult, 0, len(results))
	for _, r := range results {
		if statusFilter == "" || string(r.Status) == statusFilter {
			filtered = append(filtered, r)
		}
	}
	return printOutput(cmd.OutOrStdout(), filtered, resultsTable(filtered))
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	project, job := args[0], args[1]

	if !waitForJob {
		sub, err := client.Run(cmd.Context(), project, job)
		if err != nil {
			return fmt.Errorf("failed to run job: %w", err)
		}
		if sub.DryRun {
			return nil
		}
		return printOutput(cmd.OutOrStdout(), sub.Data, func(t *tablewriter.Table) {
			t.Header("Project", "Job", "Result ID")
			t.Append(project, job, sub.ResultID)
		})
	}

	result, err := client.RunAndWait(cmd.Context(), project, job, jobTimeout)
	if err != nil {
		return fmt.Errorf("failed to run job: %w", err)
	}
	if err := printOutput(cmd.OutOrStdout(), result, resultsTable([]bandit.JobResult{*result})); err != nil {
		return err
	}
	if result.Status == bandit.StatusFailed {
		return fmt.Errorf("job %s/%s: %w", project, job, bandit.ErrJobFailed)
	}
	return nil
}

func runJobsSeries(cmd *cobra.Command, args []string) error {
	jobs, err := bandit.LoadSeries(args[0])
	if err != nil {
		return err
	}

	results, runErr := client.RunSeries(cmd.Context(), jobs, jobTimeout)
	if len(results) > 0 {
		if err := printOutput(cmd.OutOrStdout(), results, resultsTable(results)); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("series stopped after %d of %d jobs: %w", len(results), len(jobs), runErr)
	}
	return nil
}

func runJobsFile(cmd *cobra.Command, args []string) error {
	data, err := client.GetFile(cmd.Context(), bandit.FileRef{
		Username: args[0],
		Project:  args[1],
		Job:      args[2],
		Filename: args[3],
		N:        fileRun,
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", args[3], err)
	}

	if fileOut == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if dir := filepath.Dir(fileOut); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(fileOut, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileOut, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), fileOut)
	return nil
}
