// Package metrics defines Prometheus metrics for mail log transports,
// covering verification, delivery outcomes, emitted events, and event sinks.
package metrics
