package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders the session view and session counters in
// Prometheus text exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter creates an exporter that reads from manager.
func NewPrometheusExporter(manager *civix.Manager) *PrometheusExporter {
	return &PrometheusExporter{source: manager}
}

// NewPrometheusExporterFromSource creates an exporter over any source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Render.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current exposition. The session gauges and audit
// counters are always present; the session counters and the enrichment
// latency histogram only when metrics are enabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	var w textWriter
	w.b.Grow(4096)

	st := p.source.State()
	w.gauge(internaldefs.SessionAuthenticatedName, internaldefs.SessionAuthenticatedHelp, internaldefs.Flag(st.IsAuthenticated))
	w.gauge(internaldefs.SessionLoadingName, internaldefs.SessionLoadingHelp, internaldefs.Flag(st.Loading))
	w.header(internaldefs.SessionPhaseName, internaldefs.SessionPhaseHelp, "gauge")
	for _, phase := range internaldefs.Phases {
		w.sample(internaldefs.SessionPhaseName, internaldefs.PhaseLabel, phase.String(), strconv.FormatInt(internaldefs.PhaseValue(st, phase), 10))
	}
	w.gauge(internaldefs.SessionVersionName, internaldefs.SessionVersionHelp, int64(st.Version))

	snapshot := p.source.MetricsSnapshot()
	for _, def := range internaldefs.CounterDefs {
		v, ok := snapshot.Counters[def.ID]
		if !ok {
			continue
		}
		w.counter(def.Name, def.Help, v)
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		w.histogram(def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw)))
	}

	w.counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, p.source.AuditDropped())
	w.counter(internaldefs.AuditSinkPanicsName, internaldefs.AuditSinkPanicsHelp, p.source.AuditSinkPanics())

	return w.b.String()
}

type textWriter struct {
	b strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	w.b.WriteString("# HELP ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(escapeHelp(help))
	w.b.WriteString("\n# TYPE ")
	w.b.WriteString(name)
	w.b.WriteByte(' ')
	w.b.WriteString(kind)
	w.b.WriteByte('\n')
}

// sample writes one line. label may be empty for an unlabeled series.
func (w *textWriter) sample(name, label, labelValue, value string) {
	w.b.WriteString(name)
	if label != "" {
		w.b.WriteByte('{')
		w.b.WriteString(label)
		w.b.WriteString(`="`)
		w.b.WriteString(labelValue)
		w.b.WriteString(`"}`)
	}
	w.b.WriteByte(' ')
	w.b.WriteString(value)
	w.b.WriteByte('\n')
}

func (w *textWriter) counter(name, help string, v uint64) {
	w.header(name, help, "counter")
	w.sample(name, "", "", strconv.FormatUint(v, 10))
}

func (w *textWriter) gauge(name, help string, v int64) {
	w.header(name, help, "gauge")
	w.sample(name, "", "", strconv.FormatInt(v, 10))
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64) {
	w.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", "le", le, strconv.FormatUint(cumulative[i], 10))
	}
	w.sample(name+"_count", "", "", strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	// Only bucket counts are recorded.
	w.sample(name+"_sum", "", "", "0")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
