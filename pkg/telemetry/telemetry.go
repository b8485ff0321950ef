// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry installs the OpenTelemetry tracer provider that records
// one span per mail verification and delivery.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/version"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config is the tracing section of the config file.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is otlp (default), stdout or none.
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP gRPC collector address, e.g. otel-collector:4317.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// SamplingRate is the probability of sampling a root span. Values
	// outside (0, 1] sample everything.
	SamplingRate float64 `yaml:"samplingRate"`
}

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Init installs the global tracer provider described by cfg. A disabled
// config installs a no-op provider and a no-op ShutdownFunc.
func Init(ctx context.Context, cfg Config, log *zap.SugaredLogger) (trace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("telemetry")

	rate := cfg.SamplingRate
	if rate <= 0 || rate > 1 {
		if rate != 0 {
			log.Warnw("Sampling rate out of range, sampling everything", "provided", rate)
		}
		rate = 1
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", version.Program),
			attribute.String("service.version", version.Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warnw("OpenTelemetry error", "error", err)
	}))

	log.Infow("Tracing enabled", "exporter", exporterName(cfg), "endpoint", cfg.Endpoint, "samplingRate", rate)

	return tp, func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}, nil
}

func exporterName(cfg Config) string {
	if cfg.Exporter == "" {
		return ExporterOTLP
	}
	return cfg.Exporter
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch exporterName(cfg) {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP exporter: %w", err)
		}
		return exp, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q: supported values are otlp, stdout, none", cfg.Exporter)
	}
}
