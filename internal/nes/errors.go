package nes

import (
	"errors"
	"fmt"
	"net/http"
)

// Common NES API errors
var (
	// ErrUnauthorized is returned for 401/403 responses: the API token is
	// missing, expired or lacks access to the collection.
	ErrUnauthorized = errors.New("NES API rejected the token")

	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("NES document not found")

	// ErrTransient marks failures worth retrying: timeouts, 429 and 5xx gateway errors.
	ErrTransient = errors.New("transient NES API failure")

	// ErrUnavailable is returned when a request failed for good, including
	// after all retries were spent.
	ErrUnavailable = errors.New("NES API unavailable")

	// ErrMissingToken is returned when an authenticated call is made without a token.
	ErrMissingToken = errors.New("NES API token is not configured")
)

// APIError describes a failed NES API request.
type APIError struct {
	// Op is the client operation that failed (e.g., "ListInvoices", "FetchDocument").
	Op string

	// URL is the request URL without query parameters.
	URL string

	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// Err is the classified sentinel error.
	Err error

	// Details carries a short excerpt of the response body or the transport error.
	Details string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("nes: %s %s", e.Op, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	msg += ": " + e.Err.Error()
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *APIError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// retryableStatus lists the statuses retried with backoff.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func classifyStatus(code int) error {
	switch {
	case retryableStatus[code]:
		return ErrTransient
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrUnavailable
	}
}
