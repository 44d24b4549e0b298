package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNoUploader is returned when no Uploader serves a Space kind.
	ErrNoUploader = errors.New("no uploader for space kind")
	// ErrTimeout marks an attempt that exceeded the upload timeout.
	ErrTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "upload timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// RemoteError wraps a failure reported by the remote side.
type RemoteError struct {
	Op    string
	Cause error
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// classify maps an attempt error to a metrics result label and a log hint.
func classify(err error) (result, hint string) {
	var remote *RemoteError
	switch {
	case err == nil:
		return "uploaded", ""
	case errors.Is(err, context.Canceled):
		return "interrupted", "the daemon stopped mid-upload; the media is requeued at the next start"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout", "raise workflow.upload_timeout or check remote bandwidth"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open", "remote failing repeatedly; retry after upload.breaker_cooldown"
	case errors.Is(err, ErrNoUploader):
		return "error", "set upload.mirror_dir or register an uploader for this space kind"
	case errors.As(err, &remote):
		return "error", "check the space host and credentials"
	default:
		return "error", "inspect the status message and retry"
	}
}
