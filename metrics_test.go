package authcore

import (
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricRegisterSuccess)
	m.Inc(MetricRegisterSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricRegisterSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	s := m.Snapshot()
	if s.Counters[MetricRegisterSuccess] != 2 {
		t.Fatalf("snapshot: expected 2, got %d", s.Counters[MetricRegisterSuccess])
	}
	if s.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("snapshot: expected 1, got %d", s.Counters[MetricLoginSuccess])
	}
	if s.Counters[MetricLoginFailure] != 0 {
		t.Fatalf("snapshot: expected 0, got %d", s.Counters[MetricLoginFailure])
	}
}

func TestMetricsDisabledNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricRegisterSuccess)
	m.Observe(MetricTokenValidateLatency, time.Millisecond)

	if m.Value(MetricRegisterSuccess) != 0 {
		t.Fatal("expected disabled metrics to stay zero")
	}
	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatal("expected empty snapshot when disabled")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricRegisterSuccess)
	if nilMetrics.Value(MetricRegisterSuccess) != 0 {
		t.Fatal("expected nil metrics to read zero")
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	observations := []struct {
		d      time.Duration
		bucket int
	}{
		{2 * time.Millisecond, 0},
		{8 * time.Millisecond, 1},
		{20 * time.Millisecond, 2},
		{40 * time.Millisecond, 3},
		{80 * time.Millisecond, 4},
		{200 * time.Millisecond, 5},
		{400 * time.Millisecond, 6},
		{900 * time.Millisecond, 7},
	}
	for _, o := range observations {
		m.Observe(MetricTokenValidateLatency, o.d)
	}

	s := m.Snapshot()
	buckets, ok := s.Histograms[MetricTokenValidateLatency]
	if !ok {
		t.Fatal("expected latency histogram in snapshot")
	}
	for _, o := range observations {
		if buckets[o.bucket] != 1 {
			t.Fatalf("duration %v: expected bucket %d to hold 1, got %d", o.d, o.bucket, buckets[o.bucket])
		}
	}

	// counters other than the latency metric ignore Observe
	m.Observe(MetricRegisterSuccess, time.Millisecond)
	s = m.Snapshot()
	if _, ok := s.Histograms[MetricRegisterSuccess]; ok {
		t.Fatal("expected no histogram for counter metric")
	}
}

func TestMetricsHistogramDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Observe(MetricTokenValidateLatency, time.Millisecond)

	s := m.Snapshot()
	if len(s.Histograms) != 0 {
		t.Fatal("expected no histograms without EnableLatencyHistograms")
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Hour, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}
