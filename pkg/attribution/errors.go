// Package attribution resolves deferred deep links, parses inbound links into
// attribution records, and creates attributed links through a remote service.
package attribution

import "errors"

// Attribution errors.
var (
	// ErrInvalidConfiguration is returned when link parameters cannot be
	// encoded. The transport is never called.
	ErrInvalidConfiguration = errors.New("invalid link configuration")

	// ErrNetwork wraps a transport failure on verify or create.
	ErrNetwork = errors.New("network error")

	// ErrAttributionFailed is delivered to the handler when verify fails or
	// returns an unusable result.
	ErrAttributionFailed = errors.New("attribution failed")

	// ErrInvalidURL is returned when link creation succeeds without a usable URL.
	ErrInvalidURL = errors.New("invalid URL in response")

	// ErrMissingCredentials is raised by transports that reject an empty
	// credential. The coordinator never raises it on its own.
	ErrMissingCredentials = errors.New("missing credentials")
)
