package peerbonus

import (
	"context"
	"testing"
	"time"
)

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricAuthLatency, time.Millisecond)

	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricAuthLatency, time.Second)
	if m.Value(MetricLogout) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, d := range []time.Duration{
		10 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		time.Minute,
	} {
		m.Observe(MetricAuthLatency, d)
	}
	// Only the latency metric has a histogram.
	m.Observe(MetricLoginSuccess, time.Second)

	buckets := m.Snapshot().Histograms[MetricAuthLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricLoginSuccess]; ok {
		t.Fatal("unexpected histogram for a counter metric")
	}
}

func TestManagerCountsOutcomes(t *testing.T) {
	api := newFakeAPI()
	api.addUser("1", "Ann", "ann@x.com", "secret123")
	m, _ := newReadyManager(t, api)
	ctx := context.Background()

	_, _ = m.Login(ctx, Credentials{Email: "ann@x.com", Password: "wrong"})
	_, _ = m.Login(ctx, Credentials{Email: "ann@x.com", Password: "secret123"})
	_ = m.Logout(ctx)
	_, _ = m.Register(ctx, RegisterRequest{Name: "Bob", Email: "bob@x.com", Password: "secret456"})

	counters := m.MetricsSnapshot().Counters
	want := map[MetricID]uint64{
		MetricHydrateAnonymous: 1,
		MetricLoginFailure:     1,
		MetricLoginSuccess:     1,
		MetricLogout:           1,
		MetricRegisterSuccess:  1,
	}
	for id, v := range want {
		if counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, counters[id])
		}
	}

	var observed uint64
	for _, v := range m.MetricsSnapshot().Histograms[MetricAuthLatency] {
		observed += v
	}
	// login(fail) + login + me + register + login + me
	if observed != 6 {
		t.Fatalf("expected 6 latency samples, got %d", observed)
	}
}
