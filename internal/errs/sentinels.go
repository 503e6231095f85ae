// Package errs holds the sentinel errors shared by repositories, services and
// the gRPC layer, which maps them onto status codes.
package errs

import "errors"

var (
	// ErrNotFound: the requested row or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput: malformed input rejected before any side effect
	// (empty drain batch, unparseable value, missing field).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized: a code, follow-up token or session did not verify.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited: verification is locked for this email and address.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists: unique constraint violation, e.g. a duplicate log entry id.
	ErrAlreadyExists = errors.New("already exists")
)
