package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	peerbonus "github.com/peerbonus/peerbonus-go"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu      sync.RWMutex
	metrics *peerbonus.Metrics
	dropped uint64
}

func (f *fakeSource) MetricsSnapshot() peerbonus.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.metrics.Snapshot()
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newSource() *fakeSource {
	return &fakeSource{metrics: peerbonus.NewMetrics(peerbonus.MetricsConfig{Enabled: true, EnableLatencyHistograms: true})}
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("peerbonus-test")

	src := newSource()
	src.metrics.Inc(peerbonus.MetricLoginSuccess)
	src.metrics.Inc(peerbonus.MetricLoginSuccess)
	src.metrics.Inc(peerbonus.MetricLoginSuccess)
	src.dropped = 1

	exp, err := NewExporter(meter, src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got, ok := findSum(rm, "peerbonus_login_success_total"); !ok || got != 3 {
		t.Fatalf("expected login success 3, got %d (found=%v)", got, ok)
	}
	if got, ok := findSum(rm, "peerbonus_audit_dropped_total"); !ok || got != 1 {
		t.Fatalf("expected audit dropped 1, got %d (found=%v)", got, ok)
	}
}

func TestExporterRejectsNil(t *testing.T) {
	meter := sdkmetric.NewMeterProvider().Meter("peerbonus-test")

	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, newSource()); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("peerbonus-test")

	src := newSource()
	exp, err := NewExporter(meter, src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.metrics.Inc(peerbonus.MetricLogout)

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}()
	}
	wg.Wait()
}

func findBucket(rm metricdata.ResourceMetrics, name, le string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				continue
			}
			for _, dp := range gauge.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("le")); ok && v.AsString() == le {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterHistogramBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := newSource()
	src.metrics.Observe(peerbonus.MetricAuthLatency, 20*time.Millisecond)
	src.metrics.Observe(peerbonus.MetricAuthLatency, 300*time.Millisecond)
	src.metrics.Observe(peerbonus.MetricAuthLatency, 10*time.Second)

	exp, err := NewExporter(provider.Meter("peerbonus-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for le, want := range map[string]int64{"0.05": 1, "0.5": 2, "5": 2, "+Inf": 3} {
		got, ok := findBucket(rm, "peerbonus_auth_latency_seconds_bucket", le)
		if !ok || got != want {
			t.Fatalf("le=%s: expected %d, got %d (found=%v)", le, want, got, ok)
		}
	}
}
