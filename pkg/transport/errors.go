package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport operations.
var (
	ErrUnauthorized = errors.New("attribution service rejected credential")
	ErrBaseURL      = errors.New("invalid attribution service URL")
)

// StatusError is returned for non-2xx responses other than 401/403.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("attribution service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("attribution service returned HTTP %d: %s", e.StatusCode, e.Body)
}
