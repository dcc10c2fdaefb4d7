package bandit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/tracing"
)

const (
	// DefaultPollInterval is the fixed wait between job-result polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultTimeout bounds RunAndWait when the caller passes no timeout.
	DefaultTimeout = 10 * time.Minute
)

// RunAndWait triggers a job and polls job results until the run reaches a
// terminal status. It fails with ErrTimeout when timeout elapses first. A
// failed run is returned without error; inspect its Status.
func (c *Client) RunAndWait(ctx context.Context, project, job string, timeout time.Duration) (*JobResult, error) {
	start := time.Now()
	sub, err := c.Run(ctx, project, job)
	if err != nil {
		return nil, err
	}
	if sub.DryRun {
		return dryRunResult(job), nil
	}
	return c.wait(ctx, job, sub.ResultID, timeout, start)
}

// Wait polls job results for an already submitted run.
func (c *Client) Wait(ctx context.Context, sub *Submission, timeout time.Duration) (*JobResult, error) {
	if sub == nil || sub.ResultID == "" {
		return nil, fmt.Errorf("%w: nothing to wait for, submission has no result id", ErrSubmission)
	}
	return c.wait(ctx, "", sub.ResultID, timeout, time.Now())
}

func (c *Client) wait(ctx context.Context, job, resultID string, timeout time.Duration, start time.Time) (*JobResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := start.Add(timeout)

	ctx, span := c.tracer.Start(ctx, "wait "+resultID)
	span.SetAttributes(
		attribute.String("bandit.job", job),
		attribute.String("bandit.result_id", resultID),
	)
	defer span.End()

	log := c.logger.WithField("result_id", resultID)
	var lastErr error
	for attempt := 1; ; attempt++ {
		c.metrics.IncPoll()
		result, err := c.findResult(ctx, resultID)
		switch {
		case err != nil:
			lastErr = err
			log.Warn("failed to poll job results", logging.Fields{"attempt": attempt, "error": err.Error()})
		case result != nil && result.Status.Terminal():
			c.metrics.JobFinished(string(result.Status))
			span.SetAttributes(attribute.String("bandit.status", string(result.Status)))
			log.Debug("job finished", logging.Fields{"status": string(result.Status), "attempt": attempt})
			return result, nil
		case result != nil:
			log.Debug("job not finished", logging.Fields{"status": string(result.Status), "attempt": attempt})
		default:
			log.Debug("job result not listed yet", logging.Fields{"attempt": attempt})
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.metrics.JobFinished("timeout")
			terr := timeoutError(resultID, timeout, lastErr)
			tracing.SetError(span, terr)
			return nil, terr
		}
		if err := sleep(ctx, min(c.pollInterval, remaining)); err != nil {
			tracing.SetError(span, err)
			return nil, err
		}
	}
}

// findResult fetches job results and returns the one with resultID, or nil.
func (c *Client) findResult(ctx context.Context, resultID string) (*JobResult, error) {
	results, err := c.GetJobResults(ctx)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].ID == resultID {
			return &results[i], nil
		}
	}
	return nil, nil
}

func timeoutError(resultID string, timeout time.Duration, last error) error {
	if last != nil {
		return fmt.Errorf("%w: result %s after %s: last poll: %w", ErrTimeout, resultID, timeout, last)
	}
	return fmt.Errorf("%w: result %s after %s", ErrTimeout, resultID, timeout)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dryRunResult(job string) *JobResult {
	r := NewJobResult(map[string]any{
		"name":   job,
		"status": string(StatusDryRun),
	})
	return &r
}

// SeriesJob is one entry of a job series. Timeout is in seconds; zero uses
// the series default. AllowFailure lets the series continue past a run that
// finishes with status failed.
type SeriesJob struct {
	Project      string  `json:"project" yaml:"project" toml:"project"`
	Name         string  `json:"name" yaml:"name" toml:"name"`
	Timeout      float64 `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	AllowFailure bool    `json:"allow_failure,omitempty" yaml:"allow_failure,omitempty" toml:"allow_failure,omitempty"`
}

func (j SeriesJob) timeout(fallback time.Duration) time.Duration {
	if j.Timeout > 0 {
		return time.Duration(j.Timeout * float64(time.Second))
	}
	return fallback
}

// RunSeries runs jobs one after another and returns their results in input
// order. A job that errors or times out stops the series.
//
// Unlike RunAndWait, RunSeries also treats a run that finishes with status
// failed as fatal unless the job sets AllowFailure: the series stops with
// ErrJobFailed and the results gathered so far, including the failed one, are
// returned with the error.
func (c *Client) RunSeries(ctx context.Context, jobs []SeriesJob, defaultTimeout time.Duration) ([]JobResult, error) {
	results := make([]JobResult, 0, len(jobs))
	for i, job := range jobs {
		if job.Project == "" || job.Name == "" {
			return results, fmt.Errorf("%w: series job %d needs a project and a name", ErrValidation, i)
		}
		c.logger.Info("running series job", logging.Fields{
			"index":   i,
			"project": job.Project,
			"job":     job.Name,
		})
		result, err := c.RunAndWait(ctx, job.Project, job.Name, job.timeout(defaultTimeout))
		if err != nil {
			return results, fmt.Errorf("series job %d (%s/%s): %w", i, job.Project, job.Name, err)
		}
		results = append(results, *result)
		if result.Status == StatusFailed && !job.AllowFailure {
			return results, fmt.Errorf("series job %d (%s/%s): %w", i, job.Project, job.Name, ErrJobFailed)
		}
	}
	return results, nil
}
