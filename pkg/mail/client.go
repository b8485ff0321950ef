package mail

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidConfig  = errors.New("invalid mail client configuration")
	ErrUnknownService = errors.New("unknown mail service")
	ErrVerify         = errors.New("mail server verification failed")
	ErrSend           = errors.New("failed to send mail")
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 25
	DefaultTimeout = 10 * time.Second
)

// Message is a single plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
}

// Receipt identifies a message accepted by the mail endpoint.
type Receipt struct {
	MessageID string
	Response  string
}

// Client sends mail through a single configured endpoint. Implementations
// must be safe for concurrent use.
type Client interface {
	// Verify checks that the endpoint is reachable and accepts our credentials.
	Verify(ctx context.Context) error
	// Send hands one message to the endpoint.
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// ServiceConfig selects a well-known provider preset by name.
type ServiceConfig struct {
	Service  string
	Username string
	Password string
}

// DirectConfig points at an SMTP server explicitly.
type DirectConfig struct {
	Host    string
	Port    int
	Secure  bool
	Timeout time.Duration
}

// Factory builds clients for either connection mode.
type Factory interface {
	FromService(cfg ServiceConfig) (Client, error)
	FromDirect(cfg DirectConfig) (Client, error)
}

// DefaultFactory resolves service presets and builds gomail or Postmark clients.
type DefaultFactory struct{}

func (DefaultFactory) FromService(cfg ServiceConfig) (Client, error) {
	if isPostmarkAPI(cfg.Service) {
		return NewPostmarkClient(cfg.Password, DefaultTimeout)
	}
	preset, ok := LookupService(cfg.Service)
	if !ok {
		return nil, errors.Join(ErrUnknownService, errors.New(cfg.Service))
	}
	return NewSMTPClient(SMTPConfig{
		Host:     preset.Host,
		Port:     preset.Port,
		Secure:   preset.Secure,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  DefaultTimeout,
	})
}

func (DefaultFactory) FromDirect(cfg DirectConfig) (Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewSMTPClient(SMTPConfig{
		Host:    host,
		Port:    port,
		Secure:  cfg.Secure,
		Timeout: timeout,
	})
}
