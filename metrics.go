package civix

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process session counter.
type MetricID uint16

const (
	// MetricLogin counts successful Login calls.
	MetricLogin MetricID = iota
	// MetricLoginRejected counts Login calls refused with ErrInvalidSession.
	MetricLoginRejected
	// MetricLogout counts Logout calls that cleared a session.
	MetricLogout
	// MetricProviderSignIn counts sign-in reports from the identity provider.
	MetricProviderSignIn
	// MetricProviderSignOut counts sign-out reports from the identity provider.
	MetricProviderSignOut
	// MetricEnrichmentSuccess counts profile fetches merged into the session.
	MetricEnrichmentSuccess
	// MetricEnrichmentFailure counts profile fetches that failed.
	MetricEnrichmentFailure
	// MetricEnrichmentDiscarded counts profile results dropped because the
	// session changed while the fetch was in flight.
	MetricEnrichmentDiscarded
	// MetricRemoteSignOutFailure counts failed best-effort provider sign-outs.
	MetricRemoteSignOutFailure
	// MetricSnapshotFallback counts enrichment failures covered by a stored
	// snapshot of the same user.
	MetricSnapshotFallback
	// MetricSnapshotFailure counts snapshot store errors.
	MetricSnapshotFailure
	// MetricProfileUpdated counts UpdateProfile edits.
	MetricProfileUpdated
	// MetricWatcherPanic counts recovered panics in Watch callbacks.
	MetricWatcherPanic
	// MetricEnrichmentLatency is the latency histogram of profile fetches.
	MetricEnrichmentLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free session counters and the enrichment latency
// histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricEnrichmentLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricEnrichmentLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEnrichmentLatency].buckets[i])
		}
		s.Histograms[MetricEnrichmentLatency] = buckets
	}

	return s
}

// Enrichment calls are network round trips, so buckets start at 25ms.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
