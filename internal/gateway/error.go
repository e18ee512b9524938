package gateway

import (
	"fmt"
	"net/http"
)

// genericMessage is reported when the server payload carries no error field.
const genericMessage = "request failed"

// APIError is a non-2xx response from the API, carrying the server-supplied
// message when present and a generic fallback otherwise.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// Temporary reports whether the failure is worth retrying for idempotent
// reads: server-side errors and 429. 403 and 404 are terminal.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Unauthorized reports whether the response was HTTP 401.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}
