package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPConfig configures an SMTPClient. Username and Password may be empty
// for unauthenticated relays.
type SMTPConfig struct {
	Host               string
	Port               int
	Secure             bool
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Logger             *zap.SugaredLogger
}

// SMTPClient delivers mail over SMTP. gomail builds and hands over the
// message; the connection is dialed here so the configured timeout bounds
// connection setup only. Every call opens a fresh connection so the client is
// safe for concurrent use.
type SMTPClient struct {
	host     string
	port     int
	secure   bool
	username string
	password string
	tls      *tls.Config
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewSMTPClient(cfg SMTPConfig) (*SMTPClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, cfg.Port)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.InsecureSkipVerify {
		log.Warnw("TLS verification disabled for SMTP connection", "host", cfg.Host)
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicitly configured
	}

	log.Debugw("Initialized SMTP client",
		"host", cfg.Host,
		"port", cfg.Port,
		"secure", cfg.Secure,
		"user", cfg.Username,
		"timeout", timeout)

	return &SMTPClient{
		host:     cfg.Host,
		port:     cfg.Port,
		secure:   cfg.Secure,
		username: cfg.Username,
		password: cfg.Password,
		tls:      tlsConfig,
		timeout:  timeout,
		log:      log,
	}, nil
}

// Verify opens a session, negotiates TLS and authentication, and quits.
func (c *SMTPClient) Verify(ctx context.Context) error {
	sess, err := c.open(ctx)
	if err != nil {
		return errors.Join(ErrVerify, err)
	}
	defer sess.close()
	if err := sess.client.Quit(); err != nil {
		return errors.Join(ErrVerify, err)
	}
	return nil
}

func (c *SMTPClient) Send(ctx context.Context, m Message) (Receipt, error) {
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), c.host)

	msg := gomail.NewMessage()
	msg.SetHeader("Message-Id", id)
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", splitAddresses(m.To)...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetDateHeader("Date", time.Now())
	msg.SetBody("text/plain", m.Text)

	sess, err := c.open(ctx)
	if err != nil {
		c.log.Debugw("SMTP connection failed", "host", c.host, "messageID", id, "error", err)
		return Receipt{}, errors.Join(ErrSend, err)
	}
	defer sess.close()

	if err := gomail.Send(sess, msg); err != nil {
		c.log.Debugw("SMTP send failed", "host", c.host, "messageID", id, "error", err)
		return Receipt{}, errors.Join(ErrSend, err)
	}
	// The message is accepted once DATA completes; a failed QUIT does not undo that.
	if err := sess.client.Quit(); err != nil {
		c.log.Debugw("SMTP QUIT failed after delivery", "host", c.host, "messageID", id, "error", err)
	}
	return Receipt{
		MessageID: id,
		Response:  "accepted by " + c.Addr(),
	}, nil
}

func (c *SMTPClient) Host() string {
	return c.host
}

func (c *SMTPClient) Port() int {
	return c.port
}

func (c *SMTPClient) Secure() bool {
	return c.secure
}

func (c *SMTPClient) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// session is an open SMTP conversation. It implements gomail.Sender.
type session struct {
	client   *smtp.Client
	stopWait func() bool
}

// open dials the server and completes the greeting, STARTTLS and AUTH within
// the configured timeout. The rest of the session is bounded only by ctx.
func (c *SMTPClient) open(ctx context.Context) (*session, error) {
	deadline := time.Now().Add(c.timeout)
	dialer := &net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return nil, fmt.Errorf("smtp %s: %w", c.Addr(), err)
	}
	_ = conn.SetDeadline(deadline)

	// Cancelling ctx stops the session through the connection instead of
	// leaving it running unobserved.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	fail := func(err error) (*session, error) {
		stop()
		_ = conn.Close()
		return nil, fmt.Errorf("smtp %s: %w", c.Addr(), err)
	}

	var wire net.Conn = conn
	if c.secure {
		wire = tls.Client(conn, c.tls)
	}
	client, err := smtp.NewClient(wire, c.host)
	if err != nil {
		return fail(err)
	}
	if !c.secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(c.tls); err != nil {
				return fail(err)
			}
		}
	}
	if c.username != "" {
		if ok, mechs := client.Extension("AUTH"); ok {
			if err := client.Auth(c.auth(mechs)); err != nil {
				return fail(err)
			}
		}
	}

	var sessionDeadline time.Time
	if d, ok := ctx.Deadline(); ok {
		sessionDeadline = d
	}
	if err := conn.SetDeadline(sessionDeadline); err != nil {
		return fail(err)
	}
	return &session{client: client, stopWait: stop}, nil
}

func (c *SMTPClient) auth(mechs string) smtp.Auth {
	if strings.Contains(mechs, "CRAM-MD5") {
		return smtp.CRAMMD5Auth(c.username, c.password)
	}
	return smtp.PlainAuth("", c.username, c.password, c.host)
}

// Send runs one MAIL/RCPT/DATA transaction.
func (s *session) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *session) close() {
	s.stopWait()
	_ = s.client.Close()
}

// splitAddresses accepts a comma separated recipient list.
func splitAddresses(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
