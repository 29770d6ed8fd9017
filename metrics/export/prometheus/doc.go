// Package prometheus exposes goFactor metrics through a client_golang
// Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape and emits const
// metrics, so it adds no state of its own. Counter names are
// gofactor_*_total; the verify latency histogram is
// gofactor_verify_latency_seconds.
//
// Nothing is registered globally. Callers either Register the collector with
// their own Registerer or mount Handler, which serves a private registry.
package prometheus
