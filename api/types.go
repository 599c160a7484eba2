package api

import (
	"github.com/jrsteele09/go-session-client/token"
	"github.com/jrsteele09/go-session-client/users"
)

// Auth endpoint paths, relative to the API base URL
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
)

// AuthResponse is the body returned by login, register and refresh:
// {"user": {...}, "accessToken": "...", "refreshToken": "..."}
type AuthResponse struct {
	// User is the server-issued profile. Refresh responses may omit it.
	User *users.User `json:"user,omitempty"`

	token.Pair
}

// RefreshRequest is the body posted to /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Result is the resolved outcome of a remote call: exactly one of Value or Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Succeeded reports whether the call resolved without error
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// Unwrap returns the result in (value, error) form
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}
