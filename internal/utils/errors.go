package utils

import (
	"errors"
	"fmt"
)

// ErrNoData signals that a reporting key has no resolvable view or no events in the window.
// It is a soft, per-key condition: callers drop the key instead of failing the whole request.
var ErrNoData = errors.New("no data")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// ConfigurationError reports required settings missing or invalid for a service. It is never retried.
type ConfigurationError struct {
	Service string
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("service %s: invalid setting %q: %s", e.Service, e.Field, e.Reason)
	}
	return fmt.Sprintf("service %s: missing required setting %q", e.Service, e.Field)
}

// BadResponseError reports a non-success status or an empty payload from the analytics backend.
type BadResponseError struct {
	Endpoint string
	Status   int
	Msg      string
}

func (e *BadResponseError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("bad response from %s: %s", e.Endpoint, e.Msg)
	}
	return fmt.Sprintf("bad response from %s: status %d: %s", e.Endpoint, e.Status, e.Msg)
}

// ComputationError wraps an unexpected failure inside a cache loader or an orchestrator task.
type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: computation failed: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// NewComputationError wraps err unless it already is a ComputationError.
func NewComputationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ComputationError
	if errors.As(err, &ce) {
		return err
	}
	return &ComputationError{Op: op, Err: err}
}

// IsNoData reports whether err carries ErrNoData.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsBadResponse reports whether err carries a BadResponseError.
func IsBadResponse(err error) bool {
	var br *BadResponseError
	return errors.As(err, &br)
}
