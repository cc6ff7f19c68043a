package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error types reported by the seed service.
const (
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeSeedNotFound = "seed_not_found"
	ErrTypeSeedConsumed = "seed_consumed"
	ErrTypeValidation   = "validation_error"
)

// APIError is a non-2xx response from the seed service.
type APIError struct {
	StatusCode int            `json:"-"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("raid api: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("raid api: HTTP %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// IsRetryable is true for throttling and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsSeedConsumed is true when the seed was already settled.
func (e *APIError) IsSeedConsumed() bool {
	return e.StatusCode == http.StatusConflict || e.Type == ErrTypeSeedConsumed
}

// IsUnauthorized is true when the token is missing, expired or invalid.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsSeedConsumed reports whether err is a seed_consumed API error.
func IsSeedConsumed(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsSeedConsumed()
}
