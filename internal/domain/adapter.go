package domain

import (
	"context"
	"errors"
	"fmt"
)

// AppliedState is what a platform reports as currently deployed.
type AppliedState struct {
	ArtifactRef string
	Replicas    int
	Healthy     bool
}

// TargetAdapter translates generic deploy operations into platform calls.
//
// Apply must be idempotent: applying an already-converged state is a no-op
// that still succeeds. CurrentState is the read-back used for convergence
// planning and for reconciling pending records after a crash. Errors
// returned by either operation carry a classification (see [AdapterError])
// so the engine can decide retry eligibility.
type TargetAdapter interface {
	Apply(ctx context.Context, target Target, artifactRef string, replicas int) (AppliedState, error)
	CurrentState(ctx context.Context, target Target) (AppliedState, error)
}

// ErrorClass splits adapter failures into retryable and terminal.
type ErrorClass string

const (
	// ErrorTransient covers network faults, timeouts, throttling and
	// platform-side errors. Retried with backoff.
	ErrorTransient ErrorClass = "transient"
	// ErrorPermanent covers authentication and validation failures.
	// Surfaced immediately, never retried.
	ErrorPermanent ErrorClass = "permanent"
)

// AdapterError wraps a platform failure with its retry classification.
type AdapterError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// TransientError wraps err as a retryable adapter failure.
func TransientError(op string, err error) *AdapterError {
	return &AdapterError{Class: ErrorTransient, Op: op, Err: err}
}

// PermanentError wraps err as a terminal adapter failure.
func PermanentError(op string, err error) *AdapterError {
	return &AdapterError{Class: ErrorPermanent, Op: op, Err: err}
}

// IsTransient reports whether err is an adapter failure eligible for retry.
// Unclassified errors are not retried.
func IsTransient(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Class == ErrorTransient
}

// AdapterRegistry resolves the adapter serving a platform kind. The
// registry plays the role a strategy factory plays for pluggable behavior:
// each platform implements the same capability set independently.
type AdapterRegistry map[AdapterKind]TargetAdapter

// Adapter returns the adapter registered for kind.
func (r AdapterRegistry) Adapter(kind AdapterKind) (TargetAdapter, error) {
	a, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for platform kind %q", ErrNotFound, kind)
	}
	return a, nil
}
