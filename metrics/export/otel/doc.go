// Package otel binds the civix session view and session metrics to an
// OpenTelemetry Meter.
//
// Session state is published as Int64ObservableGauges
// (civix_session_authenticated, civix_session_loading,
// civix_session_state_version, and civix_session_phase with a "phase"
// attribute). Counters become Int64ObservableCounters and each latency bucket
// an Int64ObservableGauge. One callback reads the manager per collection
// cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate session state.
package otel
