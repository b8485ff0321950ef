// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/metrics"
)

// DefaultWriteTimeout bounds a single sink write triggered by a transport event.
const DefaultWriteTimeout = 5 * time.Second

// Sink defines the interface for event destinations.
type Sink interface {
	// Write sends an event to the sink.
	Write(ctx context.Context, event mailtransport.Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// Attach forwards every event of t to the given sinks. Sink errors are logged
// and counted; they never reach the transport.
func Attach(t *mailtransport.Transport, log *zap.SugaredLogger, sinks ...Sink) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	t.OnEvent(func(ev mailtransport.Event) {
		for _, s := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
			if err := s.Write(ctx, ev); err != nil {
				metrics.EventSinkErrors.WithLabelValues(s.Name(), "write").Inc()
				log.Warnw("Failed to write transport event", "sink", s.Name(), "eventID", ev.ID, "error", err)
			}
			cancel()
		}
	})
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("mail-events")}
}

// Write logs the event at info or warn level depending on its kind.
func (s *LogSink) Write(_ context.Context, event mailtransport.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("transport", event.Transport),
		zap.String("level", event.Level),
		zap.String("to", event.To),
		zap.String("subject", event.Subject),
	}

	if event.Kind == mailtransport.EventError {
		s.logger.Warn("mail delivery failed", append(fields, zap.Error(event.Err))...)
		return nil
	}

	if event.Receipt.MessageID != "" {
		fields = append(fields, zap.String("message_id", event.Receipt.MessageID))
	}
	if event.Receipt.Response != "" {
		fields = append(fields, zap.String("response", event.Receipt.Response))
	}
	s.logger.Info("mail delivered", fields...)
	return nil
}

// Close is a no-op for LogSink.
func (s *LogSink) Close() error {
	return nil
}

// Name returns the sink identifier.
func (s *LogSink) Name() string {
	return "log"
}
