package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
)

// Error is a non-2xx response from the API
type Error struct {
	StatusCode int    // HTTP status code
	Message    string // "message" (or "error") field of the JSON body, else the status text
	Body       []byte // Raw response body
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 for transport errors
func StatusCode(err error) int {
	var apiErr *Error
	if sessionerrors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsClientError reports whether err is a 4xx from the API
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}

func newError(statusCode int, body []byte) *Error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := http.StatusText(statusCode)
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			message = payload.Message
		} else if payload.Error != "" {
			message = payload.Error
		}
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) < 200 {
		message = trimmed
	}
	return &Error{StatusCode: statusCode, Message: message, Body: body}
}
