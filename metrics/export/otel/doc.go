// Package otel binds goFactor metrics to an OpenTelemetry Meter.
//
// Counters become Int64ObservableCounter instruments. The verify latency
// histogram is exposed as a cumulative gauge gofactor_verify_latency_seconds_bucket
// with an "le" attribute per upper bound, plus a _count gauge. The caller
// owns the MeterProvider.
package otel
