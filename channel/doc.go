// Package channel provides DeliveryChannel adapters for goFactor.
//
// The engine never talks to a transport itself. Callers hand BeginChallenge a
// DeliveryChannel and the engine calls Deliver exactly once per issued
// challenge. Func adapts a plain function; Recorder captures deliveries in
// memory for tests and demos. Package channel/kafka hands deliveries off to
// an external notifier service over Kafka.
package channel
