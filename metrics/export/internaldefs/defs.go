package internaldefs

import (
	"github.com/civix-platform/civix"
)

// CounterDef names one exported session counter.
type CounterDef struct {
	ID   civix.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   civix.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: civix.MetricLogin, Name: "civix_session_login_total", Help: "Explicit logins."},
	{ID: civix.MetricLoginRejected, Name: "civix_session_login_rejected_total", Help: "Logins rejected for malformed session records."},
	{ID: civix.MetricLogout, Name: "civix_session_logout_total", Help: "Logouts that cleared a session."},
	{ID: civix.MetricProviderSignIn, Name: "civix_provider_sign_in_total", Help: "Sign-in reports from the identity provider."},
	{ID: civix.MetricProviderSignOut, Name: "civix_provider_sign_out_total", Help: "Sign-out reports from the identity provider."},
	{ID: civix.MetricEnrichmentSuccess, Name: "civix_profile_enrichment_success_total", Help: "Backend profiles merged into the session."},
	{ID: civix.MetricEnrichmentFailure, Name: "civix_profile_enrichment_failure_total", Help: "Failed backend profile fetches."},
	{ID: civix.MetricEnrichmentDiscarded, Name: "civix_profile_enrichment_discarded_total", Help: "Profile results dropped because the session changed."},
	{ID: civix.MetricRemoteSignOutFailure, Name: "civix_remote_sign_out_failure_total", Help: "Failed best-effort provider sign-outs."},
	{ID: civix.MetricSnapshotFallback, Name: "civix_snapshot_fallback_total", Help: "Enrichment failures covered by a stored snapshot."},
	{ID: civix.MetricSnapshotFailure, Name: "civix_snapshot_failure_total", Help: "Snapshot store errors."},
	{ID: civix.MetricProfileUpdated, Name: "civix_profile_updated_total", Help: "Explicit profile edits."},
	{ID: civix.MetricWatcherPanic, Name: "civix_watcher_panic_total", Help: "Recovered panics in session watchers."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: civix.MetricEnrichmentLatency, Name: "civix_profile_enrichment_latency_seconds", Help: "Backend profile fetch latency."},
}

// HistogramBounds are the upper bounds of the eight histogram buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable in metric names.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// Series that are not backed by a MetricID.
const (
	AuditDroppedName    = "civix_audit_dropped_total"
	AuditDroppedHelp    = "Audit events dropped on a full dispatcher buffer."
	AuditSinkPanicsName = "civix_audit_sink_panics_total"
	AuditSinkPanicsHelp = "Audit sink calls that panicked."

	SessionAuthenticatedName = "civix_session_authenticated"
	SessionAuthenticatedHelp = "1 while a user is signed in."
	SessionLoadingName       = "civix_session_loading"
	SessionLoadingHelp       = "1 until the identity provider first reports its state."
	SessionPhaseName         = "civix_session_phase"
	SessionPhaseHelp         = "1 for the current session phase, 0 for the others."
	SessionVersionName       = "civix_session_state_version"
	SessionVersionHelp       = "Version of the current session state."

	// PhaseLabel is the label carrying the phase name on SessionPhaseName.
	PhaseLabel = "phase"
)

// Source is what the exporters read on every collection. *civix.Manager
// satisfies it.
type Source interface {
	MetricsSnapshot() civix.MetricsSnapshot
	AuditDropped() uint64
	AuditSinkPanics() uint64
	State() civix.State
}

// Phases lists every session phase in render order.
var Phases = []civix.Phase{
	civix.PhaseUnauthenticated,
	civix.PhaseAuthenticating,
	civix.PhaseAuthenticated,
}

// Flag maps a boolean to a gauge value.
func Flag(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// PhaseValue is the one-hot value of phase p for state st.
func PhaseValue(st civix.State, p civix.Phase) int64 {
	return Flag(st.Phase == p)
}
