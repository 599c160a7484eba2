package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrRefreshRejected  = errors.New("refresh token rejected")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Token errors
	ErrMalformedToken = errors.New("malformed access token")
	ErrMissingExpiry  = errors.New("access token missing exp claim")

	// Storage errors
	ErrNotFound = errors.New("not found")

	// Transport errors
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// Wrapf prefixes err with a formatted context message, keeping it matchable by Is.
// A nil err stays nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is matches err against a sentinel of this package or any other error
func Is(err, target error) bool { return errors.Is(err, target) }

// As extracts a typed error, such as *api.Error, from err's chain
func As(err error, target any) bool { return errors.As(err, target) }
