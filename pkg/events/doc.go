// Package events forwards mail transport delivery events to sinks such as the
// application log or a Kafka topic.
package events
