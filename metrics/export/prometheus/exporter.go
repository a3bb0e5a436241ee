package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/authcore-io/authcore"
	"github.com/authcore-io/authcore/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in Prometheus text exposition format.
// It scrapes the engine's in-process counters on each render; no
// background collection is involved.
type Exporter struct {
	source metricsSource
}

func NewExporter(engine *authcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource builds an exporter over any snapshot source, for
// callers that wrap or aggregate engines.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render produces the text exposition body.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()

	var b strings.Builder

	for _, def := range internaldefs.CounterDefs {
		value := snapshot.Counters[def.ID]
		b.WriteString("# HELP " + def.Name + " " + def.Help + "\n")
		b.WriteString("# TYPE " + def.Name + " counter\n")
		b.WriteString(def.Name + " " + strconv.FormatUint(value, 10) + "\n")
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}

		b.WriteString("# HELP " + def.Name + " " + def.Help + "\n")
		b.WriteString("# TYPE " + def.Name + " histogram\n")

		var cumulative uint64
		for i, count := range buckets {
			cumulative += count
			le := internaldefs.HistogramBoundSuffix[i]
			if le == "inf" {
				le = "+Inf"
			}
			b.WriteString(def.Name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative, 10) + "\n")
		}
		b.WriteString(def.Name + "_count " + strconv.FormatUint(cumulative, 10) + "\n")
	}

	const droppedName = "authcore_audit_dropped_total"
	b.WriteString("# HELP " + droppedName + " Audit events shed because the dispatch buffer was full.\n")
	b.WriteString("# TYPE " + droppedName + " counter\n")
	b.WriteString(droppedName + " " + strconv.FormatUint(p.source.AuditDropped(), 10) + "\n")

	return b.String()
}
