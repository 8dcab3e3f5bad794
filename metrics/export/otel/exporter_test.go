package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu         sync.RWMutex
	counters   map[civix.MetricID]uint64
	histograms map[civix.MetricID][]uint64
	dropped    uint64
	sinkPanics uint64
	state      civix.State
}

func (f *fakeSource) MetricsSnapshot() civix.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := civix.MetricsSnapshot{
		Counters:   make(map[civix.MetricID]uint64, len(f.counters)),
		Histograms: make(map[civix.MetricID][]uint64, len(f.histograms)),
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) AuditSinkPanics() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sinkPanics
}

func (f *fakeSource) State() civix.State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return rm
}

// valueOf returns the data point of name, matching the phase attribute when
// phase is not empty.
func valueOf(rm metricdata.ResourceMetrics, name, phase string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			case metricdata.Sum[int64]:
				points = data.DataPoints
			}
			for _, p := range points {
				if phase == "" {
					return p.Value, true
				}
				if v, ok := p.Attributes.Value(attribute.Key(internaldefs.PhaseLabel)); ok && v.AsString() == phase {
					return p.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterPublishesSessionStateAndCounters(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters:   map[civix.MetricID]uint64{civix.MetricLogin: 3},
		histograms: map[civix.MetricID][]uint64{civix.MetricEnrichmentLatency: {1, 1, 1, 1, 1, 1, 1, 1}},
		dropped:    1,
		sinkPanics: 2,
		state:      civix.State{IsAuthenticated: true, Phase: civix.PhaseAuthenticated, Version: 5},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("civix-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	rm := collect(t, reader)
	checks := []struct {
		name, phase string
		want        int64
	}{
		{internaldefs.SessionAuthenticatedName, "", 1},
		{internaldefs.SessionLoadingName, "", 0},
		{internaldefs.SessionVersionName, "", 5},
		{internaldefs.SessionPhaseName, "authenticated", 1},
		{internaldefs.SessionPhaseName, "authenticating", 0},
		{"civix_session_login_total", "", 3},
		{"civix_profile_enrichment_latency_seconds_count", "", 8},
		{internaldefs.AuditDroppedName, "", 1},
		{internaldefs.AuditSinkPanicsName, "", 2},
	}
	for _, c := range checks {
		got, ok := valueOf(rm, c.name, c.phase)
		if !ok || got != c.want {
			t.Fatalf("%s{%s}: expected %d, got %d (found=%v)", c.name, c.phase, c.want, got, ok)
		}
	}
}

func TestExporterSkipsCountersWhenMetricsDisabled(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{state: civix.State{Loading: true}}

	exp, err := NewOTelExporterFromSource(provider.Meter("civix-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	rm := collect(t, reader)
	if _, ok := valueOf(rm, "civix_session_login_total", ""); ok {
		t.Fatal("expected no login counter while metrics are disabled")
	}
	if got, ok := valueOf(rm, internaldefs.SessionLoadingName, ""); !ok || got != 1 {
		t.Fatalf("expected loading gauge 1, got %d (found=%v)", got, ok)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newReader()
	if _, err := NewOTelExporterFromSource(provider.Meter("civix-test"), nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters:   map[civix.MetricID]uint64{civix.MetricLogin: 1},
		histograms: map[civix.MetricID][]uint64{civix.MetricEnrichmentLatency: {1, 0, 0, 0, 0, 0, 0, 0}},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("civix-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[civix.MetricLogin] = v
			src.state.Version = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
