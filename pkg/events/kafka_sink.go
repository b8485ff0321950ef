/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/metrics"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string `yaml:"name"`

	// Brokers is the list of Kafka broker addresses.
	Brokers []string `yaml:"brokers"`

	// Topic is the Kafka topic to write events to.
	Topic string `yaml:"topic"`

	// TLS enables TLS for broker connections.
	TLS bool `yaml:"tls"`

	// InsecureSkipVerify skips broker certificate verification.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify"`

	// SASL authentication configuration.
	SASL *KafkaSASLConfig `yaml:"sasl"`

	// BatchSize is the number of messages to batch before flushing. A
	// synchronous write of a single event waits for BatchTimeout unless the
	// batch is full, so the default flushes every message.
	// Default: 1
	BatchSize int `yaml:"batchSize"`

	// BatchTimeout is the maximum time to wait before flushing a batch.
	// Default: 1 second
	BatchTimeout time.Duration `yaml:"batchTimeout"`

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// Async makes writes fire-and-forget. Delivery errors are then only
	// logged by the writer and never reach the circuit breaker.
	// Default: false
	Async bool `yaml:"async"`

	// CompressionCodec for message compression.
	// Valid values: "none", "gzip", "snappy", "lz4", "zstd"
	// Default: "snappy"
	CompressionCodec string `yaml:"compression"`
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is one of "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512".
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes transport events to a Kafka topic as JSON.
type KafkaSink struct {
	name   string
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool

	messagesWritten atomic.Int64
	messagesFailed  atomic.Int64
	connected       atomic.Bool
}

// NewKafkaSink creates a new KafkaSink.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	transport := &kafka.Transport{}
	if cfg.TLS {
		transport.TLS = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Configurable for testing
		}
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	compression, err := compressionCodec(cfg.CompressionCodec)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		Async:                  cfg.Async,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression,
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	name := cfg.Name
	if name == "" {
		name = "kafka"
	}

	logger.Info("Kafka event sink created",
		zap.String("name", name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Int("batch_size", batchSize),
		zap.Bool("async", cfg.Async),
		zap.Bool("tls_enabled", cfg.TLS),
		zap.Bool("sasl_enabled", cfg.SASL != nil && cfg.SASL.Mechanism != ""))

	return newKafkaSink(name, writer, logger), nil
}

func newKafkaSink(name string, writer messageWriter, logger *zap.Logger) *KafkaSink {
	s := &KafkaSink{
		name:   name,
		writer: writer,
		logger: logger.Named("kafka-events"),
	}
	s.connected.Store(true)
	metrics.EventSinkConnected.WithLabelValues(name).Set(1)
	return s
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	case "snappy", "":
		return kafka.Snappy, nil
	default:
		return 0, fmt.Errorf("unknown compression codec %q", name)
	}
}

func buildSASLMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}

// record is the JSON shape of an event on the topic.
type record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Transport string    `json:"transport"`
	Level     string    `json:"level"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	MessageID string    `json:"messageId,omitempty"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func toRecord(ev mailtransport.Event) record {
	r := record{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		Transport: ev.Transport,
		Level:     ev.Level,
		To:        ev.To,
		Subject:   ev.Subject,
		MessageID: ev.Receipt.MessageID,
		Response:  ev.Receipt.Response,
		Timestamp: ev.Time,
	}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
	}
	return r
}

// classifyKafkaError categorizes Kafka errors for metrics and logging.
func classifyKafkaError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "topic"):
		return "topic"
	default:
		return "other"
	}
}

// Write publishes one event keyed by its transport name.
func (s *KafkaSink) Write(ctx context.Context, event mailtransport.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.EventSinkErrors.WithLabelValues(s.name, "closed").Inc()
		return fmt.Errorf("kafka sink is closed")
	}
	s.mu.Unlock()

	value, err := json.Marshal(toRecord(event))
	if err != nil {
		metrics.EventSinkErrors.WithLabelValues(s.name, "serialization").Inc()
		s.messagesFailed.Add(1)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Transport),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-kind", Value: []byte(event.Kind)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		errorType := classifyKafkaError(err)
		metrics.EventSinkErrors.WithLabelValues(s.name, errorType).Inc()
		s.messagesFailed.Add(1)
		if s.connected.Swap(false) {
			metrics.EventSinkConnected.WithLabelValues(s.name).Set(0)
		}
		s.logger.Warn("failed to write event to Kafka",
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.String("event_id", event.ID))
		return fmt.Errorf("failed to write to Kafka (%s): %w", errorType, err)
	}

	s.messagesWritten.Add(1)
	if !s.connected.Swap(true) {
		metrics.EventSinkConnected.WithLabelValues(s.name).Set(1)
		s.logger.Info("Kafka sink connection restored", zap.String("name", s.name))
	}
	return nil
}

// Close closes the Kafka writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	metrics.EventSinkConnected.WithLabelValues(s.name).Set(0)

	s.logger.Info("closing Kafka event sink",
		zap.String("name", s.name),
		zap.Int64("messages_written", s.messagesWritten.Load()),
		zap.Int64("messages_failed", s.messagesFailed.Load()))

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	return s.name
}

// MessageStats returns message statistics for monitoring.
func (s *KafkaSink) MessageStats() (written, failed int64) {
	return s.messagesWritten.Load(), s.messagesFailed.Load()
}
