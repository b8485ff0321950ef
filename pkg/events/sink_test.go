// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telekom/logmail/pkg/mail"
	"github.com/telekom/logmail/pkg/mailtransport"
)

type stubClient struct {
	sendErr error
}

func (c *stubClient) Verify(context.Context) error { return nil }

func (c *stubClient) Send(context.Context, mail.Message) (mail.Receipt, error) {
	if c.sendErr != nil {
		return mail.Receipt{}, c.sendErr
	}
	return mail.Receipt{MessageID: "<1@test>", Response: "250 OK"}, nil
}

type stubFactory struct{ client *stubClient }

func (f stubFactory) FromService(mail.ServiceConfig) (mail.Client, error) { return f.client, nil }
func (f stubFactory) FromDirect(mail.DirectConfig) (mail.Client, error)   { return f.client, nil }

type memorySink struct {
	name   string
	err    error
	mu     sync.Mutex
	events []mailtransport.Event
}

func (s *memorySink) Write(_ context.Context, ev mailtransport.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *memorySink) Close() error { return nil }
func (s *memorySink) Name() string { return s.name }

func (s *memorySink) all() []mailtransport.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailtransport.Event(nil), s.events...)
}

func newTransport(t *testing.T, client *stubClient) *mailtransport.Transport {
	t.Helper()
	tr, err := mailtransport.New(mailtransport.Options{To: "ops@example.com"},
		mailtransport.WithFactory(stubFactory{client: client}),
		mailtransport.WithHostname("testhost"))
	require.NoError(t, err)
	return tr
}

func waitFor(t *testing.T, tr *mailtransport.Transport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
}

func TestAttachForwardsEvents(t *testing.T) {
	tr := newTransport(t, &stubClient{})
	first := &memorySink{name: "first"}
	second := &memorySink{name: "second"}
	Attach(tr, nil, first, second)

	done := make(chan error, 1)
	tr.Log("error", "disk full", nil, func(err error) { done <- err })
	require.NoError(t, <-done)
	waitFor(t, tr)

	for _, s := range []*memorySink{first, second} {
		evs := s.all()
		require.Len(t, evs, 1, s.name)
		assert.Equal(t, mailtransport.EventInfo, evs[0].Kind)
		assert.Equal(t, "<1@test>", evs[0].Receipt.MessageID)
		assert.Equal(t, "ops@example.com", evs[0].To)
	}
}

func TestAttachSinkErrorDoesNotStopOtherSinks(t *testing.T) {
	tr := newTransport(t, &stubClient{sendErr: errors.New("relay denied")})
	core, logs := observer.New(zapcore.WarnLevel)
	failing := &memorySink{name: "failing", err: errors.New("sink down")}
	healthy := &memorySink{name: "healthy"}
	Attach(tr, zap.New(core).Sugar(), failing, healthy)

	done := make(chan error, 1)
	tr.Log("error", "boom", nil, func(err error) { done <- err })
	assert.NoError(t, <-done)
	waitFor(t, tr)

	evs := healthy.all()
	require.Len(t, evs, 1)
	assert.Equal(t, mailtransport.EventError, evs[0].Kind)
	assert.EqualError(t, evs[0].Err, "relay denied")

	entries := logs.FilterMessage("Failed to write transport event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["sink"])
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	assert.Equal(t, "log", sink.Name())

	require.NoError(t, sink.Write(context.Background(), mailtransport.Event{
		ID:        "1",
		Kind:      mailtransport.EventInfo,
		Transport: "mail",
		Level:     "error",
		Receipt:   mail.Receipt{MessageID: "<1@test>", Response: "250 OK"},
	}))
	require.NoError(t, sink.Write(context.Background(), mailtransport.Event{
		ID:        "2",
		Kind:      mailtransport.EventError,
		Transport: "mail",
		Err:       errors.New("timeout"),
	}))
	require.NoError(t, sink.Close())

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "mail delivered", all[0].Message)
	assert.Equal(t, zapcore.InfoLevel, all[0].Level)
	assert.Equal(t, "<1@test>", all[0].ContextMap()["message_id"])
	assert.Equal(t, "mail-events", all[0].LoggerName)

	assert.Equal(t, "mail delivery failed", all[1].Message)
	assert.Equal(t, zapcore.WarnLevel, all[1].Level)
	assert.Equal(t, "timeout", all[1].ContextMap()["error"])
}
