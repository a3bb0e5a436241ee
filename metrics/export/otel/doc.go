// Package otel provides OpenTelemetry metric exporter bindings for authcore
// counters and histograms.
//
// [NewExporter] registers Int64ObservableCounter instruments for each authcore
// metric and Int64ObservableGauge per histogram bucket. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
