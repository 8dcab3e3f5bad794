package civix

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLogin)

	if got := m.Value(MetricLogin); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogin)
	m.Observe(MetricEnrichmentLatency, time.Second)
	if got := m.Value(MetricLogin); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricProviderSignIn)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricProviderSignIn); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		5 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricEnrichmentLatency, d)
	}
	// Only the enrichment latency carries a histogram.
	m.Observe(MetricLogin, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricEnrichmentLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricLogin]; ok {
		t.Fatal("unexpected histogram for MetricLogin")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: false,
	})
	m.Inc(MetricLogin)
	m.Inc(MetricEnrichmentFailure)
	m.Inc(MetricEnrichmentFailure)
	m.Observe(MetricEnrichmentLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLogin] != 1 {
		t.Fatalf("expected MetricLogin=1 got %d", snap.Counters[MetricLogin])
	}
	if snap.Counters[MetricEnrichmentFailure] != 2 {
		t.Fatalf("expected MetricEnrichmentFailure=2 got %d", snap.Counters[MetricEnrichmentFailure])
	}
	if len(snap.Counters) != int(metricIDCount) {
		t.Fatalf("expected every counter in snapshot, got %d", len(snap.Counters))
	}
	if _, ok := snap.Histograms[MetricEnrichmentLatency]; ok {
		t.Fatal("histogram must be absent when latency histograms are disabled")
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricProviderSignIn)
		}
	})
}
