package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/authcore-io/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return s.snapshot }
func (s *fakeSource) AuditDropped() uint64                      { return s.dropped }

func testSnapshot() authcore.MetricsSnapshot {
	return authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricRegisterSuccess: 7,
			authcore.MetricLoginSuccess:    3,
		},
		Histograms: map[authcore.MetricID][]uint64{
			authcore.MetricTokenValidateLatency: {4, 2, 0, 1, 0, 0, 0, 1},
		},
	}
}

func TestRenderCounters(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{snapshot: testSnapshot(), dropped: 9})
	body := exporter.Render()

	for _, want := range []string{
		"# TYPE authcore_register_success_total counter\n",
		"authcore_register_success_total 7\n",
		"authcore_login_success_total 3\n",
		"authcore_login_failure_total 0\n",
		"authcore_audit_dropped_total 9\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in rendered body:\n%s", want, body)
		}
	}
}

func TestRenderHistogramCumulativeBuckets(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{snapshot: testSnapshot()})
	body := exporter.Render()

	for _, want := range []string{
		"# TYPE authcore_token_validate_latency_seconds histogram\n",
		`authcore_token_validate_latency_seconds_bucket{le="0.005"} 4` + "\n",
		`authcore_token_validate_latency_seconds_bucket{le="0.01"} 6` + "\n",
		`authcore_token_validate_latency_seconds_bucket{le="0.05"} 7` + "\n",
		`authcore_token_validate_latency_seconds_bucket{le="+Inf"} 8` + "\n",
		"authcore_token_validate_latency_seconds_count 8\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in rendered body:\n%s", want, body)
		}
	}
}

func TestRenderSkipsAbsentHistograms(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{},
	}})
	body := exporter.Render()

	if strings.Contains(body, "authcore_token_validate_latency_seconds_bucket") {
		t.Fatal("histogram series rendered without snapshot data")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	exporter := NewExporterFromSource(&fakeSource{snapshot: testSnapshot()})

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authcore_register_success_total 7") {
		t.Fatal("body missing counter sample")
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var exporter *Exporter
	if exporter.Render() != "" {
		t.Fatal("nil exporter must render empty body")
	}
}
