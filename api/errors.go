package api

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError reports a transport failure: no response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError reports a response with a non-2xx status. Message is taken from
// the body's "detail" field, then its "message" field, then the status text.
type HTTPError struct {
	Status     int
	StatusText string
	Message    string
	Body       any
}

func (e *HTTPError) Error() string {
	return e.Message
}

func newHTTPError(status int, statusText string, body any) *HTTPError {
	if statusText == "" {
		statusText = http.StatusText(status)
	}
	return &HTTPError{
		Status:     status,
		StatusText: statusText,
		Message:    errorMessage(body, statusText),
		Body:       body,
	}
}

func errorMessage(body any, fallback string) string {
	if obj, ok := body.(map[string]any); ok {
		for _, field := range []string{"detail", "message"} {
			if msg, ok := obj[field].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if fallback == "" {
		return "request failed"
	}
	return fallback
}

// Message renders err as a string suitable for showing to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "Unable to reach the server. Check your connection and try again."
	}
	return err.Error()
}

// IsNetworkError reports whether err is, or wraps, a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
