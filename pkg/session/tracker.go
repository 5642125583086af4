package session

import (
	"context"
	"log/slog"
)

// MarkerKey is the single key used for the first-session marker.
const MarkerKey = "first_session_marker"

// seenSentinel is written to mean "attribution has been resolved".
var seenSentinel = []byte{}

// Tracker answers "has attribution ever been resolved on this install".
// Marker absent means first session.
//
// Storage failures are logged and swallowed: attribution must never block
// the host application, so persistence is best effort.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: logger.With("component", "session.tracker"),
	}
}

// Load reports whether this is the first session.
// An unreadable store counts as a first session.
func (t *Tracker) Load(ctx context.Context) bool {
	_, ok, err := t.store.Get(ctx, MarkerKey)
	if err != nil {
		t.logger.Warn("failed to read first session marker", "error", err)
		return true
	}
	return !ok
}

// MarkSeen persists the marker. Repeated calls are harmless.
func (t *Tracker) MarkSeen(ctx context.Context) {
	if err := t.store.Set(ctx, MarkerKey, seenSentinel); err != nil {
		t.logger.Warn("failed to write first session marker", "error", err)
	}
}

// Reset deletes the marker so the next Load reports a first session.
func (t *Tracker) Reset(ctx context.Context) {
	if err := t.store.Delete(ctx, MarkerKey); err != nil {
		t.logger.Warn("failed to clear first session marker", "error", err)
	}
}
