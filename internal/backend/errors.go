package backend

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrUnexpectedStatus is wrapped by NetworkError when the backend answered
// with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// NetworkError reports a failed snapshot fetch or transition request. The
// engine state is never affected by one; callers may retry.
type NetworkError struct {
	Op         string // "list", "patch", "scan"
	StatusCode int    // HTTP status when the backend answered, else 0
	Code       string // AWS API error code, when available
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Code != "":
		return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Code, e.Err)
	default:
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

func newNetworkError(op string, err error) *NetworkError {
	ne := &NetworkError{Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ne.Code = apiErr.ErrorCode()
	}
	return ne
}
