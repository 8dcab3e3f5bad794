package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// reading is everything read from the source in one collection cycle.
type reading struct {
	metrics    civix.MetricsSnapshot
	state      civix.State
	dropped    uint64
	sinkPanics uint64
}

type observeFunc func(r *reading, o metric.Observer)

// OTelExporter publishes the session view and session counters as
// observable OTel instruments.
type OTelExporter struct {
	source       internaldefs.Source
	registration metric.Registration

	instruments []metric.Observable
	observers   []observeFunc
}

// NewOTelExporter registers instruments on meter that read from manager.
func NewOTelExporter(meter metric.Meter, manager *civix.Manager) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, manager)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source.
func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	steps := []func(metric.Meter) error{
		e.addSessionGauges,
		e.addCounters,
		e.addHistograms,
		e.addAuditCounters,
	}
	for _, step := range steps {
		if err := step(meter); err != nil {
			return nil, err
		}
	}

	registration, err := meter.RegisterCallback(e.observe, e.instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) add(ins metric.Observable, fn observeFunc) {
	e.instruments = append(e.instruments, ins)
	e.observers = append(e.observers, fn)
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	r := reading{
		metrics:    e.source.MetricsSnapshot(),
		state:      e.source.State(),
		dropped:    e.source.AuditDropped(),
		sinkPanics: e.source.AuditSinkPanics(),
	}
	for _, fn := range e.observers {
		fn(&r, o)
	}
	return nil
}

func (e *OTelExporter) addSessionGauges(meter metric.Meter) error {
	gauges := []struct {
		name, help string
		value      func(st civix.State) int64
	}{
		{internaldefs.SessionAuthenticatedName, internaldefs.SessionAuthenticatedHelp, func(st civix.State) int64 { return internaldefs.Flag(st.IsAuthenticated) }},
		{internaldefs.SessionLoadingName, internaldefs.SessionLoadingHelp, func(st civix.State) int64 { return internaldefs.Flag(st.Loading) }},
		{internaldefs.SessionVersionName, internaldefs.SessionVersionHelp, func(st civix.State) int64 { return int64(st.Version) }},
	}
	for _, g := range gauges {
		ins, err := meter.Int64ObservableGauge(g.name, metric.WithDescription(g.help))
		if err != nil {
			return fmt.Errorf("create gauge %s: %w", g.name, err)
		}
		value := g.value
		e.add(ins, func(r *reading, o metric.Observer) { o.ObserveInt64(ins, value(r.state)) })
	}

	phase, err := meter.Int64ObservableGauge(internaldefs.SessionPhaseName, metric.WithDescription(internaldefs.SessionPhaseHelp))
	if err != nil {
		return fmt.Errorf("create gauge %s: %w", internaldefs.SessionPhaseName, err)
	}
	phaseAttrs := make([]metric.ObserveOption, len(internaldefs.Phases))
	for i, p := range internaldefs.Phases {
		phaseAttrs[i] = metric.WithAttributes(attribute.String(internaldefs.PhaseLabel, p.String()))
	}
	e.add(phase, func(r *reading, o metric.Observer) {
		for i, p := range internaldefs.Phases {
			o.ObserveInt64(phase, internaldefs.PhaseValue(r.state, p), phaseAttrs[i])
		}
	})
	return nil
}

// addCounters exports the session counters. Nothing is observed while
// metrics are disabled, since the snapshot is empty.
func (e *OTelExporter) addCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.add(ins, func(r *reading, o metric.Observer) {
			if v, ok := r.metrics.Counters[id]; ok {
				o.ObserveInt64(ins, int64(v))
			}
		})
	}
	return nil
}

// addHistograms exports each histogram as one cumulative gauge per bucket
// plus a count gauge.
func (e *OTelExporter) addHistograms(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		var buckets [8]metric.Int64ObservableGauge
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			buckets[i] = ins
			e.instruments = append(e.instruments, ins)
		}
		countName := def.Name + "_count"
		count, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}

		id := def.ID
		e.add(count, func(r *reading, o metric.Observer) {
			raw, ok := r.metrics.Histograms[id]
			if !ok {
				return
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
			for i := range cumulative {
				o.ObserveInt64(buckets[i], int64(cumulative[i]))
			}
			o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
		})
	}
	return nil
}

func (e *OTelExporter) addAuditCounters(meter metric.Meter) error {
	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.add(dropped, func(r *reading, o metric.Observer) { o.ObserveInt64(dropped, int64(r.dropped)) })

	panics, err := meter.Int64ObservableCounter(internaldefs.AuditSinkPanicsName, metric.WithDescription(internaldefs.AuditSinkPanicsHelp))
	if err != nil {
		return fmt.Errorf("create audit sink panics counter: %w", err)
	}
	e.add(panics, func(r *reading, o metric.Observer) { o.ObserveInt64(panics, int64(r.sinkPanics)) })
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
