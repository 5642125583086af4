package attribution

import (
	"context"
	"net/url"

	"github.com/penshort/deeplink/pkg/fingerprint"
)

// Transport is the remote attribution service.
// Retries, timeouts and TLS are the implementation's concern.
type Transport interface {
	// Verify exchanges a fingerprint for first-session status and an
	// optional deferred destination.
	Verify(ctx context.Context, fp fingerprint.Fingerprint, credential string) (*VerifyResponse, error)

	// CreateLink registers a link and returns its shareable URL.
	// An empty string means the service returned no URL.
	CreateLink(ctx context.Context, params map[string]any, credential string) (string, error)
}

// VerifyResponse is the verify result. Both fields are optional.
type VerifyResponse struct {
	IsFirstSession *bool   `json:"isFirstSession,omitempty"`
	Link           *string `json:"link,omitempty"`
}

// ActivityType identifies a continued user activity.
type ActivityType string

// ActivityBrowsingWeb is the only activity carrying a universal link.
const ActivityBrowsingWeb ActivityType = "browsing_web"

// Activity is a continue-activity event from the host environment.
type Activity struct {
	Type       ActivityType
	WebpageURL *url.URL
}
