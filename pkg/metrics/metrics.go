// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the SDK.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Verify metrics
	IncVerify(status string) // status: "success", "failed", "superseded"
	ObserveVerifyDuration(duration time.Duration)

	// Inbound link metrics
	IncURLTracked(source string) // source: "universal_link", "url", "verify"

	// Link creation metrics
	IncLinkCreated()
	IncLinkFailed(reason string) // reason: "invalid_configuration", "network", "invalid_url"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
