// Package otel publishes session metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per latency bucket. A single callback reads
// Source.MetricsSnapshot on each collection. Callers own the MeterProvider.
package otel
