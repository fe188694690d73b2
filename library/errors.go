package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthenticated is returned by protected calls when no token is stored.
	// No request is sent.
	ErrUnauthenticated = errors.New("authentication required: please log in")

	// ErrRequestFailed matches any *RequestFailedError.
	ErrRequestFailed = errors.New("api request failed")

	// ErrProfileAccessDenied marks a login whose credentials were accepted but
	// whose follow-up profile fetch failed. The session is rolled back.
	ErrProfileAccessDenied = errors.New("profile access denied")

	// ErrNetwork matches any *NetworkError.
	ErrNetwork = errors.New("network failure")

	// ErrForbidden is returned when the stored role does not permit an action.
	ErrForbidden = errors.New("your role does not permit this action")
)

// RequestFailedError is returned when the server answers with a non-2xx status.
type RequestFailedError struct {
	Method     string
	Endpoint   string
	Status     int
	StatusText string
	// Detail is the decoded JSON body, or nil when the body was not JSON.
	Detail any
}

func newRequestFailed(method, endpoint string, status int, body []byte) *RequestFailedError {
	e := &RequestFailedError{
		Method:     method,
		Endpoint:   endpoint,
		Status:     status,
		StatusText: http.StatusText(status),
	}
	if len(body) > 0 {
		var detail any
		if err := json.Unmarshal(body, &detail); err == nil {
			e.Detail = detail
		}
	}
	return e
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("API request failed: %d - %s", e.Status, e.DetailMessage())
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrRequestFailed).
func (e *RequestFailedError) Is(target error) bool {
	return target == ErrRequestFailed
}

// DetailMessage returns the server's "detail" field when present, and the
// status text otherwise.
func (e *RequestFailedError) DetailMessage() string {
	if m, ok := e.Detail.(map[string]any); ok {
		if msg := detailText(m["detail"]); msg != "" {
			return msg
		}
	}
	if s, ok := e.Detail.(string); ok && s != "" {
		return s
	}
	if e.StatusText != "" {
		return e.StatusText
	}
	return fmt.Sprintf("status %d", e.Status)
}

// NetworkError is returned when no response was received at all.
type NetworkError struct {
	Method   string
	Endpoint string
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network failure: %v", e.Method, e.Endpoint, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrNetwork).
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// StatusCode extracts the HTTP status from a *RequestFailedError, or 0.
func StatusCode(err error) int {
	var rf *RequestFailedError
	if errors.As(err, &rf) {
		return rf.Status
	}
	return 0
}
