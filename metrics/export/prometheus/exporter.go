package prometheus

import (
	"fmt"
	"net/http"
	"strings"

	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/peerbonus/peerbonus-go/metrics/export/internaldefs"
)

// Source provides metrics to render. *peerbonus.Manager implements it.
type Source interface {
	MetricsSnapshot() peerbonus.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders session metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// NewExporter returns an Exporter reading from source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the rendered metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// sessionSource is implemented by sources that also expose live session
// state, such as *peerbonus.Manager.
type sessionSource interface {
	IsLoggedIn() bool
}

// Render returns the current metrics, or "" when metrics are disabled.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	for _, def := range internaldefs.CounterDefs {
		writeSample(&b, def.Name, def.Help, "counter", snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		writeHistogram(&b, def.Name, def.Help,
			internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID])))
	}
	writeSample(&b, "peerbonus_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", "counter", dropped)

	if s, ok := p.source.(sessionSource); ok {
		var v uint64
		if s.IsLoggedIn() {
			v = 1
		}
		writeSample(&b, "peerbonus_session_logged_in", "1 while a verified session is held.", "gauge", v)
	}
	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func writeSample(b *strings.Builder, name, help, kind string, value uint64) {
	writeHeader(b, name, help, kind)
	fmt.Fprintf(b, "%s %d\n", name, value)
}

// writeHistogram writes cumulative buckets. Latency sums are not tracked, so
// _sum is always 0.
func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}
	fmt.Fprintf(b, "%s_count %d\n%s_sum 0\n", name, cumulative[len(cumulative)-1], name)
}

var helpEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n")

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
