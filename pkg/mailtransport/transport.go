package mailtransport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/logmail/pkg/mail"
	"github.com/telekom/logmail/pkg/metrics"
	"github.com/telekom/logmail/pkg/transport"
)

const tracerName = "github.com/telekom/logmail/pkg/mailtransport"

// Transport delivers log records as email. All configuration is fixed at
// construction; Log may be called concurrently.
type Transport struct {
	opts     Options
	level    zapcore.Level
	hostname string
	subject  *template.Template
	client   mail.Client
	log      *zap.SugaredLogger

	mu       sync.RWMutex
	handlers []EventHandler

	inflight sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// Option customizes construction.
type Option func(*settings)

type settings struct {
	factory  mail.Factory
	log      *zap.SugaredLogger
	hostname string
	keyring  func(service, user string) (string, error)
}

// WithFactory replaces the mail client factory.
func WithFactory(f mail.Factory) Option {
	return func(s *settings) { s.factory = f }
}

// WithLogger sets the diagnostic logger. It must not feed back into a mail transport.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *settings) { s.log = l }
}

// WithHostname overrides the host name used in default sender and subject.
func WithHostname(h string) Option {
	return func(s *settings) { s.hostname = h }
}

// New validates opts, applies defaults and builds the mail client.
func New(opts Options, options ...Option) (*Transport, error) {
	s := settings{
		factory: mail.DefaultFactory{},
		keyring: keyringPassword,
	}
	for _, o := range options {
		o(&s)
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.hostname == "" {
		s.hostname = defaultHostname()
	}

	resolved, err := opts.withDefaults(s.hostname)
	if err != nil {
		return nil, err
	}

	level, err := transport.ParseLevel(resolved.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var subject *template.Template
	if resolved.SubjectTemplate != "" {
		subject, err = template.New("subject").Funcs(sprig.TxtFuncMap()).Parse(resolved.SubjectTemplate)
		if err != nil {
			return nil, fmt.Errorf("%w: subject template: %v", ErrConfiguration, err)
		}
	}

	client, err := buildClient(resolved, s)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		opts:     resolved,
		level:    level,
		hostname: s.hostname,
		subject:  subject,
		client:   client,
		log:      s.log.Named("mail-transport").With("transport", resolved.Name),
	}
	t.log.Infow("Mail transport initialized",
		"to", resolved.To,
		"from", resolved.From,
		"level", resolved.Level,
		"service", resolved.Service,
		"host", resolved.Host,
		"port", resolved.Port)
	return t, nil
}

// buildClient takes exactly one of the two configuration branches.
func buildClient(o Options, s settings) (mail.Client, error) {
	var (
		client mail.Client
		err    error
	)
	if o.ServiceMode() {
		password := o.Password
		if password == "" && o.PasswordKeyring != "" {
			password, err = s.keyring(o.PasswordKeyring, o.Username)
			if err != nil {
				return nil, fmt.Errorf("%w: reading password from keyring %q: %v", ErrConfiguration, o.PasswordKeyring, err)
			}
		}
		client, err = s.factory.FromService(mail.ServiceConfig{
			Service:  o.Service,
			Username: o.Username,
			Password: password,
		})
	} else {
		client, err = s.factory.FromDirect(mail.DirectConfig{
			Host:    o.Host,
			Port:    o.Port,
			Secure:  o.Secure,
			Timeout: o.Timeout(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return client, nil
}

func (t *Transport) Name() string           { return t.opts.Name }
func (t *Transport) Level() zapcore.Level   { return t.level }
func (t *Transport) HandleExceptions() bool { return t.opts.HandleExceptions }

// Options returns the resolved configuration.
func (t *Transport) Options() Options { return t.opts }

// Log composes the body and starts verification and delivery in the
// background. level is informational only; filtering happens in the core.
func (t *Transport) Log(level, message string, meta interface{}, done transport.Callback) {
	body := ComposeBody(message, meta)
	subject := t.subjectFor(level, message)

	t.inflight.Add(2)
	go t.verify()
	go t.send(level, subject, body, done)
}

// Wait blocks until all started verifications and sends have finished or ctx is done.
func (t *Transport) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verify checks the mail endpoint synchronously. Log never depends on it.
func (t *Transport) Verify(ctx context.Context) error {
	return t.client.Verify(ctx)
}

func (t *Transport) verify() {
	defer t.inflight.Done()
	ctx, span := t.startSpan("mail.verify")
	defer span.End()
	if err := t.client.Verify(ctx); err != nil {
		metrics.MailVerifyFailure.WithLabelValues(t.opts.Name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify failed")
		t.log.Warnw("Cannot verify mail server connection", "error", err)
	}
}

func (t *Transport) startSpan(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("logmail.transport", t.opts.Name),
		attribute.Bool("logmail.service_mode", t.opts.ServiceMode()),
	)
	return otel.Tracer(tracerName).Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

func (t *Transport) send(level, subject, body string, done transport.Callback) {
	defer t.inflight.Done()

	ctx, span := t.startSpan("mail.send", attribute.String("logmail.level", level))
	defer span.End()

	metrics.MailInFlight.WithLabelValues(t.opts.Name).Inc()
	start := time.Now()
	receipt, err := t.client.Send(ctx, mail.Message{
		From:    t.opts.From,
		To:      t.opts.To,
		Subject: subject,
		Text:    body,
	})
	metrics.MailSendDuration.WithLabelValues(t.opts.Name).Observe(time.Since(start).Seconds())
	metrics.MailInFlight.WithLabelValues(t.opts.Name).Dec()

	ev := Event{
		ID:        uuid.NewString(),
		Transport: t.opts.Name,
		Level:     level,
		To:        t.opts.To,
		Subject:   subject,
		Time:      time.Now(),
	}
	if err != nil {
		metrics.MailSendFailure.WithLabelValues(t.opts.Name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		ev.Kind = EventError
		ev.Err = err
	} else {
		metrics.MailSendSuccess.WithLabelValues(t.opts.Name).Inc()
		span.SetAttributes(attribute.String("logmail.message_id", receipt.MessageID))
		ev.Kind = EventInfo
		ev.Receipt = receipt
	}
	metrics.EventsEmitted.WithLabelValues(t.opts.Name, string(ev.Kind)).Inc()
	t.emit(ev)

	if done != nil {
		if t.opts.ReportSendErrors {
			done(err)
		} else {
			done(nil)
		}
	}
}

type subjectData struct {
	Name     string
	Level    string
	Message  string
	Hostname string
}

func (t *Transport) subjectFor(level, message string) string {
	if t.subject == nil {
		return t.opts.Subject
	}
	var buf bytes.Buffer
	err := t.subject.Execute(&buf, subjectData{
		Name:     t.opts.Name,
		Level:    level,
		Message:  message,
		Hostname: t.hostname,
	})
	if err != nil {
		t.log.Warnw("Failed to render subject template, using fixed subject", "error", err)
		return t.opts.Subject
	}
	return buf.String()
}
