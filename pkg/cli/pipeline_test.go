/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/logmail/pkg/config"
	"github.com/telekom/logmail/pkg/events"
	"github.com/telekom/logmail/pkg/metrics"
	"github.com/telekom/logmail/pkg/telemetry"
)

func TestBuildPipelineClosesSinksWhenTracingFails(t *testing.T) {
	rt := &runtimeState{
		logger: zaptest.NewLogger(t),
		cfg: config.Config{
			Events: config.Events{
				Kafka: &events.KafkaSinkConfig{
					Name:    "pipeline-kafka",
					Brokers: []string{"127.0.0.1:9092"},
					Topic:   "mail-events",
				},
			},
			Tracing: telemetry.Config{Enabled: true, Exporter: "carrier-pigeon"},
		},
	}

	p, err := rt.buildPipeline()
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "tracing")
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.EventSinkConnected.WithLabelValues("pipeline-kafka")),
		"kafka sink closed after the failed build")
}

func TestBuildPipelineQueuesKafkaSink(t *testing.T) {
	rt := &runtimeState{
		logger: zaptest.NewLogger(t),
		cfg: config.Config{
			Events: config.Events{
				Log: true,
				Kafka: &events.KafkaSinkConfig{
					Name:    "pipeline-queued",
					Brokers: []string{"127.0.0.1:9092"},
					Topic:   "mail-events",
				},
				Queue: &events.QueueConfig{Size: 8},
			},
		},
	}

	p, err := rt.buildPipeline()
	require.NoError(t, err)
	require.Len(t, p.sinks, 2)
	assert.IsType(t, &events.LogSink{}, p.sinks[0])
	queued, ok := p.sinks[1].(*events.QueuedSink)
	require.True(t, ok)
	assert.Equal(t, "pipeline-queued", queued.Name())
	assert.Equal(t, 8, queued.Stats().Capacity)
	require.NoError(t, p.closeSinks())
}
