package bandit

import (
	"errors"
	"fmt"
)

// Error kinds returned by the client. Match them with errors.Is.
var (
	// ErrConfig reports credentials or settings that cannot serve the
	// requested operation. Falling back to local mode is not an error.
	ErrConfig = errors.New("bandit: configuration error")
	// ErrTransport reports a network failure or a malformed server response.
	ErrTransport = errors.New("bandit: transport error")
	// ErrValidation reports invalid caller input such as a non-numeric metric value.
	ErrValidation = errors.New("bandit: validation error")
	// ErrSerialization reports a value that cannot be encoded as JSON.
	ErrSerialization = errors.New("bandit: serialization error")
	// ErrSubmission reports a job trigger response without a result id.
	ErrSubmission = errors.New("bandit: submission error")
	// ErrTimeout reports a job that did not reach a terminal status in time.
	ErrTimeout = errors.New("bandit: timed out waiting for job")
	// ErrJobFailed reports a job in a series that finished with status failed.
	ErrJobFailed = errors.New("bandit: job failed")
)

// TransportError describes a failed API call.
type TransportError struct {
	Endpoint   string // template name, e.g. "list-jobs"
	Method     string
	URL        string
	StatusCode int    // zero when no response was received
	Body       string // leading part of the response body, if any
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
