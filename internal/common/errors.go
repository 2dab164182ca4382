// Package common defines shared sentinel errors used across the storage core.
// Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound             = errors.New("not found")
	ErrSingularityViolation = errors.New("more than one document matched")

	// Version-conflict errors. ErrStaleClient means the client's expected
	// version is ahead of the stored state (protocol error);
	// ErrConcurrentModification means the stored version is ahead of what the
	// client last saw (lost update).
	ErrStaleClient            = errors.New("invalid version")
	ErrConcurrentModification = errors.New("document modified")

	// Validation errors.
	ErrBadInput = errors.New("bad input")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// BadInputError is a validation failure carrying the path of the offending
// field, e.g. "profile.age" or "tags[2]". It matches ErrBadInput via errors.Is.
type BadInputError struct {
	Path   string
	Reason string
}

func (e *BadInputError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

func (e *BadInputError) Unwrap() error { return ErrBadInput }

// NewBadInput builds a BadInputError for the given field path.
func NewBadInput(path, format string, args ...any) error {
	return &BadInputError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
