package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/config"
	"github.com/telekom/logmail/pkg/events"
	"github.com/telekom/logmail/pkg/mailtransport"
	"github.com/telekom/logmail/pkg/telemetry"
	"github.com/telekom/logmail/pkg/transport"
	"github.com/telekom/logmail/pkg/utils"
)

// pipeline holds the transports built from the config and the event sinks
// attached to them.
type pipeline struct {
	transports []transport.Transport
	mail       []*mailtransport.Transport
	sinks      []events.Sink
	log        *zap.SugaredLogger
	tracing    telemetry.ShutdownFunc
}

func (rt *runtimeState) buildPipeline() (*pipeline, error) {
	logger := rt.Logger()
	p := &pipeline{log: logger.Sugar().Named("pipeline")}

	reg := transport.NewRegistry()
	var mailOpts []mailtransport.Option
	if rt.factory != nil {
		mailOpts = append(mailOpts, mailtransport.WithFactory(rt.factory))
	}
	if err := mailtransport.Register(reg, mailOpts...); err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(rt.cfg.Transports))
	for i, spec := range rt.cfg.Transports {
		t, err := reg.Build(spec.Type, spec.Decode, logger.Sugar())
		if err != nil {
			return nil, fmt.Errorf("transports[%d]: %w", i, err)
		}
		if prev, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("transports[%d]: name %q already used by transports[%d]", i, t.Name(), prev)
		}
		seen[t.Name()] = i
		p.transports = append(p.transports, t)
		if mt, ok := t.(*mailtransport.Transport); ok {
			p.mail = append(p.mail, mt)
		}
	}

	if err := p.attachSinks(rt.cfg.Events, logger); err != nil {
		return nil, err
	}

	_, shutdown, err := telemetry.Init(context.Background(), rt.cfg.Tracing, logger.Sugar())
	if err != nil {
		if cerr := p.closeSinks(); cerr != nil {
			p.log.Warnw("Failed to close event sinks", "error", cerr)
		}
		return nil, fmt.Errorf("tracing: %w", err)
	}
	p.tracing = shutdown
	return p, nil
}

func (p *pipeline) attachSinks(cfg config.Events, logger *zap.Logger) error {
	if cfg.Log {
		p.sinks = append(p.sinks, events.NewLogSink(logger))
	}
	if cfg.Kafka != nil {
		sink, err := events.NewKafkaSink(*cfg.Kafka, logger)
		if err != nil {
			return fmt.Errorf("events.kafka: %w", err)
		}
		var breaker events.CircuitBreakerConfig
		if cfg.CircuitBreaker != nil {
			breaker = *cfg.CircuitBreaker
		}
		var queue events.QueueConfig
		if cfg.Queue != nil {
			queue = *cfg.Queue
		}
		guarded := events.NewCircuitBreakerSink(sink, breaker, logger)
		p.sinks = append(p.sinks, events.NewQueuedSink(guarded, queue, logger))
	}
	if len(p.sinks) == 0 {
		return nil
	}
	for _, mt := range p.mail {
		events.Attach(mt, p.log, p.sinks...)
	}
	return nil
}

// selected returns the transports matching any of the glob patterns, or all
// when patterns is empty.
func (p *pipeline) selected(patterns []string) ([]transport.Transport, error) {
	if len(patterns) == 0 {
		return p.transports, nil
	}
	names := make([]string, 0, len(p.transports))
	byName := make(map[string]transport.Transport, len(p.transports))
	for _, t := range p.transports {
		names = append(names, t.Name())
		byName[t.Name()] = t
	}
	matched, err := utils.MatchNames(patterns, names)
	if err != nil {
		return nil, err
	}
	out := make([]transport.Transport, 0, len(matched))
	for _, n := range matched {
		out = append(out, byName[n])
	}
	return out, nil
}

// close waits for in-flight deliveries, closes the sinks and flushes traces.
func (p *pipeline) close(ctx context.Context) error {
	var errs []error
	for _, mt := range p.mail {
		if err := mt.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for %s: %w", mt.Name(), err))
		}
	}
	if err := p.closeSinks(); err != nil {
		errs = append(errs, err)
	}
	if p.tracing != nil {
		if err := p.tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *pipeline) closeSinks() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
