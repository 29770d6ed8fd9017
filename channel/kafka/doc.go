// Package kafka publishes goFactor deliveries to a Kafka topic for an external
// notifier service to send by email, SMS or any other medium.
//
// Each delivery becomes one JSON message keyed by challenge ID. The message
// carries the secret, so the topic must be treated as sensitive: restrict
// ACLs and keep retention short.
package kafka
