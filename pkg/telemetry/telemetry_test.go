// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func keepGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestInitDisabled(t *testing.T) {
	keepGlobalProvider(t)

	tp, shutdown, err := Init(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, noop.TracerProvider{}, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitExporters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "none", cfg: Config{Enabled: true, Exporter: ExporterNone}},
		{name: "stdout", cfg: Config{Enabled: true, Exporter: ExporterStdout, SamplingRate: 0.5}},
		// the OTLP exporter dials lazily, so an unreachable endpoint is fine
		{name: "otlp", cfg: Config{Enabled: true, Endpoint: "localhost:0", Insecure: true}},
		{name: "negative rate", cfg: Config{Enabled: true, Exporter: ExporterNone, SamplingRate: -1}},
		{name: "rate above one", cfg: Config{Enabled: true, Exporter: ExporterNone, SamplingRate: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobalProvider(t)

			tp, shutdown, err := Init(context.Background(), tt.cfg, zaptest.NewLogger(t).Sugar())
			require.NoError(t, err)
			assert.IsType(t, &sdktrace.TracerProvider{}, tp)
			assert.Same(t, tp, otel.GetTracerProvider())
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestInitUnknownExporter(t *testing.T) {
	_, _, err := Init(context.Background(), Config{Enabled: true, Exporter: "jaeger"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"jaeger"`)
}

func TestShutdownTwice(t *testing.T) {
	keepGlobalProvider(t)

	_, shutdown, err := Init(context.Background(), Config{Enabled: true, Exporter: ExporterNone}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	_ = shutdown(context.Background())
}
