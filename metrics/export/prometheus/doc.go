// Package prometheus renders the civix session view and session metrics in
// Prometheus text exposition format.
//
// The session gauges (civix_session_authenticated, civix_session_loading,
// civix_session_phase{phase="..."}, civix_session_state_version) and the audit
// counters are always rendered. Counter names are prefixed civix_ and
// suffixed _total; the enrichment latency histogram is
// civix_profile_enrichment_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate session state.
package prometheus
