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
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/metrics"
)

// CircuitState is the state of a CircuitBreakerSink.
type CircuitState int

const (
	// CircuitClosed passes every write to the wrapped sink.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects writes without touching the wrapped sink.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of probe writes through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by CircuitBreakerSink.Write while the circuit is open.
var ErrCircuitOpen = errors.New("event sink circuit open")

// CircuitBreakerConfig configures a CircuitBreakerSink.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that open the circuit.
	// Default: 5
	FailureThreshold int `yaml:"failureThreshold"`

	// SuccessThreshold is the number of consecutive half-open successes that close it again.
	// Default: 2
	SuccessThreshold int `yaml:"successThreshold"`

	// OpenTimeout is how long the circuit stays open before probing.
	// Default: 30s
	OpenTimeout time.Duration `yaml:"openTimeout"`

	// HalfOpenMaxRequests caps concurrent probe writes.
	// Default: 1
	HalfOpenMaxRequests int `yaml:"halfOpenMaxRequests"`
}

// DefaultCircuitBreakerConfig returns the defaults used for zero fields.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return c
}

// CircuitBreakerStats is a snapshot of a breaker's counters.
type CircuitBreakerStats struct {
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	Rejected             int64     `json:"rejected"`
	LastStateChange      time.Time `json:"lastStateChange"`
}

// CircuitBreakerSink stops writing to a failing sink for a while so a broker
// outage does not stall every delivery callback for the full write timeout.
type CircuitBreakerSink struct {
	sink Sink
	cfg  CircuitBreakerConfig
	log  *zap.Logger
	now  func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probes    int
	rejected  int64
	changedAt time.Time
}

// NewCircuitBreakerSink wraps sink with a circuit breaker.
func NewCircuitBreakerSink(sink Sink, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &CircuitBreakerSink{
		sink: sink,
		cfg:  cfg.withDefaults(),
		log:  logger.Named("circuit-breaker").With(zap.String("sink", sink.Name())),
		now:  time.Now,
	}
	b.changedAt = b.now()
	metrics.EventSinkCircuitState.WithLabelValues(sink.Name()).Set(float64(CircuitClosed))
	return b
}

// Write forwards the event unless the circuit is open.
func (b *CircuitBreakerSink) Write(ctx context.Context, event mailtransport.Event) error {
	if !b.acquire() {
		metrics.EventSinkCircuitRejections.WithLabelValues(b.sink.Name()).Inc()
		return ErrCircuitOpen
	}
	err := b.sink.Write(ctx, event)
	b.record(err)
	return err
}

func (b *CircuitBreakerSink) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen && b.now().Sub(b.changedAt) >= b.cfg.OpenTimeout {
		b.transition(CircuitHalfOpen)
	}
	switch b.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxRequests {
			b.rejected++
			return false
		}
		b.probes++
		return true
	default:
		b.rejected++
		return false
	}
}

func (b *CircuitBreakerSink) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen && b.probes > 0 {
		b.probes--
	}
	if err != nil {
		b.successes = 0
		b.failures++
		switch {
		case b.state == CircuitHalfOpen:
			b.transition(CircuitOpen)
		case b.state == CircuitClosed && b.failures >= b.cfg.FailureThreshold:
			b.transition(CircuitOpen)
		}
		return
	}

	b.failures = 0
	if b.state == CircuitHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(CircuitClosed)
		}
	}
}

// transition must be called with mu held.
func (b *CircuitBreakerSink) transition(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.changedAt = b.now()
	b.probes = 0
	b.successes = 0
	if to == CircuitClosed {
		b.failures = 0
	}
	metrics.EventSinkCircuitState.WithLabelValues(b.sink.Name()).Set(float64(to))

	if to == CircuitOpen {
		b.log.Warn("Event sink circuit opened",
			zap.String("from", from.String()),
			zap.Int("consecutiveFailures", b.failures),
			zap.Duration("openTimeout", b.cfg.OpenTimeout))
		return
	}
	b.log.Info("Event sink circuit state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// State returns the current state, moving an expired open circuit to half-open.
func (b *CircuitBreakerSink) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.changedAt) >= b.cfg.OpenTimeout {
		b.transition(CircuitHalfOpen)
	}
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *CircuitBreakerSink) Stats() CircuitBreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitBreakerStats{
		State:                b.state.String(),
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		Rejected:             b.rejected,
		LastStateChange:      b.changedAt,
	}
}

// Close closes the wrapped sink.
func (b *CircuitBreakerSink) Close() error {
	return b.sink.Close()
}

// Name returns the wrapped sink's name.
func (b *CircuitBreakerSink) Name() string {
	return b.sink.Name()
}
