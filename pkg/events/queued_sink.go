/*
Copyright 2026.

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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/metrics"
)

// QueueConfig configures a QueuedSink.
type QueueConfig struct {
	// Size is the capacity of the event queue.
	// Default: 1000
	Size int `yaml:"size"`

	// Workers is the number of goroutines draining the queue.
	// Default: 1
	Workers int `yaml:"workers"`

	// WriteTimeout bounds each write to the wrapped sink.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// DefaultQueueConfig returns the defaults used for zero fields.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:         1000,
		Workers:      1,
		WriteTimeout: DefaultWriteTimeout,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	def := DefaultQueueConfig()
	if c.Size <= 0 {
		c.Size = def.Size
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// QueueStats is a snapshot of a QueuedSink's counters.
type QueueStats struct {
	Name      string `json:"name"`
	Length    int    `json:"length"`
	Capacity  int    `json:"capacity"`
	Dropped   int64  `json:"dropped"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
}

// QueuedSink hands events to a wrapped sink from its own worker goroutines.
// Write never blocks: when the queue is full the event is dropped and counted.
type QueuedSink struct {
	sink  Sink
	queue chan mailtransport.Event
	cfg   QueueConfig
	log   *zap.Logger

	dropped   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	// mu guards closed against a concurrent send on the closed queue.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueuedSink starts the workers for sink.
func NewQueuedSink(sink Sink, cfg QueueConfig, logger *zap.Logger) *QueuedSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	qs := &QueuedSink{
		sink:  sink,
		queue: make(chan mailtransport.Event, cfg.Size),
		cfg:   cfg,
		log:   logger.Named("queued-sink").With(zap.String("sink", sink.Name())),
	}
	for i := 0; i < cfg.Workers; i++ {
		qs.wg.Add(1)
		go qs.drain(i)
	}
	qs.log.Debug("Queued event sink started",
		zap.Int("size", cfg.Size),
		zap.Int("workers", cfg.Workers),
		zap.Duration("writeTimeout", cfg.WriteTimeout))
	return qs
}

// Write enqueues event. The context is ignored; the worker applies WriteTimeout.
func (qs *QueuedSink) Write(_ context.Context, event mailtransport.Event) error {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	if qs.closed {
		return fmt.Errorf("queued sink %s is closed", qs.sink.Name())
	}

	select {
	case qs.queue <- event:
		metrics.EventSinkQueueLength.WithLabelValues(qs.sink.Name()).Set(float64(len(qs.queue)))
		return nil
	default:
		qs.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(qs.sink.Name(), "queue_full").Inc()
		qs.log.Warn("Event queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)))
		return nil
	}
}

func (qs *QueuedSink) drain(worker int) {
	defer qs.wg.Done()

	for event := range qs.queue {
		metrics.EventSinkQueueLength.WithLabelValues(qs.sink.Name()).Set(float64(len(qs.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), qs.cfg.WriteTimeout)
		err := qs.sink.Write(ctx, event)
		cancel()

		if err != nil {
			qs.failed.Add(1)
			metrics.EventSinkErrors.WithLabelValues(qs.sink.Name(), "write").Inc()
			qs.log.Warn("Failed to write queued event",
				zap.Int("worker", worker),
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		qs.processed.Add(1)
		metrics.EventsProcessed.WithLabelValues(qs.sink.Name()).Inc()
	}
}

// Stats returns a snapshot of the queue counters.
func (qs *QueuedSink) Stats() QueueStats {
	return QueueStats{
		Name:      qs.sink.Name(),
		Length:    len(qs.queue),
		Capacity:  cap(qs.queue),
		Dropped:   qs.dropped.Load(),
		Processed: qs.processed.Load(),
		Failed:    qs.failed.Load(),
	}
}

// Close stops accepting events, waits for the queue to drain and closes the
// wrapped sink.
func (qs *QueuedSink) Close() error {
	qs.mu.Lock()
	if qs.closed {
		qs.mu.Unlock()
		return nil
	}
	qs.closed = true
	close(qs.queue)
	qs.mu.Unlock()

	qs.wg.Wait()
	metrics.EventSinkQueueLength.WithLabelValues(qs.sink.Name()).Set(0)
	return qs.sink.Close()
}

// Name returns the wrapped sink's name.
func (qs *QueuedSink) Name() string {
	return qs.sink.Name()
}
