package kunci

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error type identifiers carried by ClientError.Type.
const (
	ErrorTypeNetwork        = "Network"
	ErrorTypeTimeout        = "Timeout"
	ErrorTypeAuthentication = "Authentication"
	ErrorTypeForbidden      = "Forbidden"
	ErrorTypeAPI            = "API"
	ErrorTypeValidation     = "Validation"
	ErrorTypeConfiguration  = "Configuration"
)

// Sentinel errors usable with errors.Is. Matching is by error type only.
var (
	ErrNetwork        = &ClientError{Type: ErrorTypeNetwork, Message: "network request failed"}
	ErrTimeout        = &ClientError{Type: ErrorTypeTimeout, Message: "request timed out"}
	ErrAuthentication = &ClientError{Type: ErrorTypeAuthentication, Message: "authentication required"}
	ErrForbidden      = &ClientError{Type: ErrorTypeForbidden, Message: "access forbidden"}
	ErrAPI            = &ClientError{Type: ErrorTypeAPI, Message: "api request failed"}
	ErrConfiguration  = &ClientError{Type: ErrorTypeConfiguration, Message: "invalid client configuration"}
)

// ClientError is the single error type returned by Client operations.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration

	retryAfter time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d, max retries %d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d (max retries %d)\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsAuthError reports whether err is a terminal 401 or 403 failure.
// Auth errors are never retried and never passed to the error interceptor.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrForbidden)
}

// IsTransient reports whether err is a network or timeout failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// IsRetryable reports whether the default retry classification would retry
// err: transient failures and 408/429 responses. 5xx is never retryable.
func IsRetryable(err error) bool {
	if IsTransient(err) {
		return true
	}
	if !errors.Is(err, ErrAPI) {
		return false
	}
	return DefaultRetryConfig().statusRetryable(StatusCode(err))
}

// StatusCode extracts the HTTP status carried by err, or 0 when none was received.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

func errorTypeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case http.StatusForbidden:
		return ErrorTypeForbidden
	default:
		return ErrorTypeAPI
	}
}
