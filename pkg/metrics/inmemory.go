package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Verify                map[string]uint64
	VerifyDurationCount   uint64
	VerifyDurationTotalNs int64
	URLsTracked           map[string]uint64
	LinksCreated          uint64
	LinksFailed           map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu          sync.Mutex
	verify      map[string]uint64
	urlsTracked map[string]uint64
	linksFailed map[string]uint64

	verifyDurationCount   uint64
	verifyDurationTotalNs int64
	linksCreated          uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		verify:      make(map[string]uint64),
		urlsTracked: make(map[string]uint64),
		linksFailed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Verify:                copyCounts(m.verify),
		VerifyDurationCount:   atomic.LoadUint64(&m.verifyDurationCount),
		VerifyDurationTotalNs: atomic.LoadInt64(&m.verifyDurationTotalNs),
		URLsTracked:           copyCounts(m.urlsTracked),
		LinksCreated:          atomic.LoadUint64(&m.linksCreated),
		LinksFailed:           copyCounts(m.linksFailed),
	}
}

// IncVerify increments the verify counter for status.
func (m *InMemoryRecorder) IncVerify(status string) {
	m.mu.Lock()
	m.verify[status]++
	m.mu.Unlock()
}

// ObserveVerifyDuration records verify round-trip duration.
func (m *InMemoryRecorder) ObserveVerifyDuration(duration time.Duration) {
	atomic.AddUint64(&m.verifyDurationCount, 1)
	atomic.AddInt64(&m.verifyDurationTotalNs, duration.Nanoseconds())
}

// IncURLTracked increments the tracked URL counter for source.
func (m *InMemoryRecorder) IncURLTracked(source string) {
	m.mu.Lock()
	m.urlsTracked[source]++
	m.mu.Unlock()
}

// IncLinkCreated increments link created counter.
func (m *InMemoryRecorder) IncLinkCreated() {
	atomic.AddUint64(&m.linksCreated, 1)
}

// IncLinkFailed increments the link failure counter for reason.
func (m *InMemoryRecorder) IncLinkFailed(reason string) {
	m.mu.Lock()
	m.linksFailed[reason]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
