package models

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports an invalid input field. Err is one of the Err* sentinels.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BackendErrorKind classifies a generation backend failure.
type BackendErrorKind string

const (
	// BackendErrorTransport is a non-retryable transport or API failure (bad key, bad request).
	BackendErrorTransport BackendErrorKind = "transport"
	// BackendErrorUnavailable is a retryable failure (rate limit, server error, network timeout).
	BackendErrorUnavailable BackendErrorKind = "unavailable"
	// BackendErrorTimeout means the call exceeded its deadline.
	BackendErrorTimeout BackendErrorKind = "timeout"
	// BackendErrorCanceled means the caller canceled the call.
	BackendErrorCanceled BackendErrorKind = "canceled"
	// BackendErrorMalformed means the backend answered with output that could not be used.
	BackendErrorMalformed BackendErrorKind = "malformed"
)

// BackendError wraps a failure of one generation backend operation.
type BackendError struct {
	Op   string
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call may succeed.
func (e *BackendError) Temporary() bool {
	return e.Kind == BackendErrorUnavailable || e.Kind == BackendErrorTimeout
}

// NewBackendError builds a BackendError, classifying context errors as timeout or
// cancellation and everything else with the given fallback kind.
func NewBackendError(op string, kind BackendErrorKind, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return &BackendError{Op: op, Kind: be.Kind, Err: be.Err}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = BackendErrorTimeout
	case errors.Is(err, context.Canceled):
		kind = BackendErrorCanceled
	}
	return &BackendError{Op: op, Kind: kind, Err: err}
}

// IsTemporaryBackendError reports whether err wraps a retryable BackendError.
func IsTemporaryBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Temporary()
}

// WorkflowError is a structural failure of a run, such as a backend returning posts
// without all four platforms or the machine reaching an unknown stage.
type WorkflowError struct {
	Stage StateType
	Err   error
}

func (e *WorkflowError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("workflow error: %v", e.Err)
	}
	return fmt.Sprintf("workflow error in %s: %v", e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }
