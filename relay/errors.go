package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a non-2xx response from the Relay platform.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("relay api error [%s] (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay api error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIError creates a new platform error.
func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// IsNotFound reports whether err is a Relay 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
