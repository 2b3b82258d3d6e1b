// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrValidation indicates a client-correctable payload problem; see ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a violated state transition.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates an exceeded quota; retry later.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation at the storage layer.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStorageUnavailable indicates a transient store fault; safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Refinements of the sentinels above. errors.Is matches both the refinement and its parent.
var (
	ErrRegistrationQuota = wrapKind(ErrRateLimited, "registration quota exceeded")
	ErrSubmissionQuota   = wrapKind(ErrRateLimited, "submission quota exceeded")

	ErrAlreadyClaimed = wrapKind(ErrConflict, "token already claimed")
	ErrNotClaimed     = wrapKind(ErrConflict, "token not claimed")
	ErrClaimExpired   = wrapKind(ErrConflict, "claim code expired")
)

type kindError struct {
	parent error
	msg    string
}

func wrapKind(parent error, msg string) error { return &kindError{parent: parent, msg: msg} }

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// ValidationError carries every violated rule of a rejected payload.
type ValidationError struct {
	Violations []string
}

// NewValidation returns a *ValidationError for a non-empty violation list, nil otherwise.
func NewValidation(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: append([]string(nil), violations...)}
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Violations extracts the violation list from err, if any.
func Violations(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Violations
	}
	return nil
}

// Kind returns a stable machine-readable kind for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// Retryable reports whether a client may retry the failed call with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrStorageUnavailable)
}
