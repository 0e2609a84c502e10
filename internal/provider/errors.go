package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure classes of a model call. Adapters wrap them in an *APIError.
var (
	ErrRateLimit     = errors.New("provider rate limited")
	ErrContextLength = errors.New("context length exceeded")
	ErrProviderDown  = errors.New("provider unavailable")
	ErrAuth          = errors.New("provider authentication failed")

	// ErrUnknownKind and ErrNoProvider come from the Registry, before any
	// request is made.
	ErrUnknownKind = errors.New("unknown provider kind")
	ErrNoProvider  = errors.New("no provider configured")
)

// APIError is a failed model call. Request names the endpoint; Type and
// RequestID are copied from the provider's error response when present.
type APIError struct {
	StatusCode int
	Type       string
	RequestID  string
	Request    *RequestDescriptor
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("model api error")
	var tags []string
	if e.StatusCode > 0 {
		tags = append(tags, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Type != "" {
		tags = append(tags, e.Type)
	}
	if e.RequestID != "" {
		tags = append(tags, "request "+e.RequestID)
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(tags, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// RequestOf returns the request descriptor carried by err, or nil.
func RequestOf(err error) *RequestDescriptor {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Request
	}
	return nil
}

// Classify maps an HTTP status and a provider error type to one of the
// failure classes, or nil when neither is recognized. The error type wins
// over the status, so an overloaded_error sent with a generic 500 still
// reads as ErrProviderDown.
func Classify(status int, errType string) error {
	switch errType {
	case "rate_limit_error":
		return ErrRateLimit
	case "overloaded_error", "api_error":
		return ErrProviderDown
	case "authentication_error", "permission_error":
		return ErrAuth
	}
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout, 529:
		return ErrProviderDown
	}
	return nil
}
