package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidIntent indicates that a submitted intent violates a
	// precondition. Caller error; never retried.
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrNoPriorRelease indicates that a rollback was requested for a
	// target with no earlier applied release to revert to.
	ErrNoPriorRelease = errors.New("no prior release")

	// ErrReleaseInFlight indicates that a target already has a pending
	// release. Deployments are serialized per target.
	ErrReleaseInFlight = errors.New("release in flight")
)
