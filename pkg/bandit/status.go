package bandit

import (
	"fmt"
	"os"

	"github.com/psantana5/bandit/pkg/logging"
)

// SetStatus records the final status of the running job. The job runner
// reads it from BANDIT_JOB_STATUS once the script exits.
func (c *Client) SetStatus(status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: job status must be %q or %q, got %q", ErrValidation, StatusSuccess, StatusFailed, status)
	}
	if err := os.Setenv(EnvJobStatus, string(status)); err != nil {
		return fmt.Errorf("failed to set %s: %w", EnvJobStatus, err)
	}
	c.logger.Debug("job status set", logging.Fields{"status": string(status)})
	return nil
}
