// Package errs defines the error taxonomy shared by the pipeline: transient
// failures that are worth retrying, permanent request failures that are
// recorded immediately, schema failures from the LLM, and the refusal to
// grade a record that never parsed.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotEvaluable is returned when evaluation is requested for a record
// whose parse status is failed. No network call is made.
var ErrNotEvaluable = errors.New("record is not evaluable: parse status is failed")

// TransientError marks a failure that may succeed on retry: timeouts,
// HTTP 5xx, and HTTP 429.
type TransientError struct {
	Op     string
	Status int // HTTP status, 0 if not an HTTP failure
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a request failure that retrying cannot fix:
// any 4xx other than 429.
type PermanentError struct {
	Op     string
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// SchemaError marks an LLM response that could not be decoded into the
// expected JSON shape. Raw retains the response text for diagnosis.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return "response schema validation failed: " + e.Reason
}

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as a PermanentError for the given operation.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// FromStatus classifies an HTTP status code into the taxonomy.
// 429 and 5xx are transient; other 4xx are permanent.
func FromStatus(op string, status int) error {
	if status == 429 || status >= 500 {
		return &TransientError{Op: op, Status: status}
	}
	return &PermanentError{Op: op, Status: status}
}

// IsTransient reports whether err is worth retrying. Network timeouts and
// context deadline expiry count as transient; context cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
