package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncVerify is a no-op.
func (n *NoopRecorder) IncVerify(status string) {}

// ObserveVerifyDuration is a no-op.
func (n *NoopRecorder) ObserveVerifyDuration(duration time.Duration) {}

// IncURLTracked is a no-op.
func (n *NoopRecorder) IncURLTracked(source string) {}

// IncLinkCreated is a no-op.
func (n *NoopRecorder) IncLinkCreated() {}

// IncLinkFailed is a no-op.
func (n *NoopRecorder) IncLinkFailed(reason string) {}
