// Package audit buffers engine audit events and relays them to a Sink.
//
// The engine decides which events exist; this package only queues them,
// isolates the engine from slow or panicking sinks, and ships a few sinks
// (channel, JSON lines, zap, fan-out).
package audit
