package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized matches 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest matches 400, 409 and 422 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrServer matches 5xx responses.
	ErrServer = errors.New("server error")

	// ErrUnreachable wraps transport-level failures (DNS, refused connection, timeout).
	ErrUnreachable = errors.New("storefront api unreachable")

	// ErrMalformedResponse is returned when a 2xx body lacks a required field.
	ErrMalformedResponse = errors.New("malformed response")
)

// Error is returned for every non-2xx response from the storefront API.
type Error struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Method and Path identify the failed call.
	Method string
	Path   string
	// Message is the server's "message" (or "error") field, when the body is JSON.
	Message string
	// Body is the raw response body, truncated.
	Body string
	// RequestID is the X-Request-ID sent with the call.
	RequestID string
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("storefront api: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is reports whether this error matches the target sentinel.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusConflict ||
			e.StatusCode == http.StatusUnprocessableEntity
	case ErrServer:
		return e.StatusCode >= 500
	}
	return false
}

const maxErrorBody = 2048

// newError builds an Error from a failed response body.
func newError(status int, method, path, requestID string, body []byte) *Error {
	e := &Error{
		StatusCode: status,
		Method:     method,
		Path:       path,
		RequestID:  requestID,
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Error
		}
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	e.Body = raw
	return e
}
