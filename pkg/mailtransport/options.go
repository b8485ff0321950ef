package mailtransport

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrConfiguration is returned when a transport cannot be constructed from its options.
var ErrConfiguration = errors.New("invalid mail transport configuration")

const (
	DefaultName      = "mail"
	DefaultLevel     = "error"
	DefaultPort      = 25
	DefaultTimeoutMs = 10000
)

// Options configures a mail transport. Service selects a provider preset and
// uses Username and Password; without it Host, Port, Secure and TimeoutMs
// describe the SMTP server directly.
type Options struct {
	Name             string `yaml:"name"`
	To               string `yaml:"to"`
	From             string `yaml:"from"`
	Subject          string `yaml:"subject"`
	SubjectTemplate  string `yaml:"subjectTemplate"`
	Level            string `yaml:"level"`
	HandleExceptions bool   `yaml:"handleExceptions"`

	Service         string `yaml:"service"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	PasswordKeyring string `yaml:"passwordKeyring"`

	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Secure    bool   `yaml:"secure"`
	TimeoutMs int    `yaml:"timeout"`

	// ReportSendErrors passes delivery failures to the Log callback. When
	// false the callback always receives nil and failures are only visible
	// as error events.
	ReportSendErrors bool `yaml:"reportSendErrors"`
}

// ServiceMode reports whether the client is built from a provider preset.
func (o Options) ServiceMode() bool {
	return o.Service != ""
}

// Timeout returns the direct-mode connection timeout.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// withDefaults fills unset fields. Subject depends on the resolved level.
func (o Options) withDefaults(hostname string) (Options, error) {
	if o.To == "" {
		return o, fmt.Errorf("%w: a recipient (to) is required", ErrConfiguration)
	}
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Level == "" {
		o.Level = DefaultLevel
	}
	if o.From == "" {
		o.From = fmt.Sprintf("al-winston@%s.io", hostname)
	}
	if o.Subject == "" {
		o.Subject = fmt.Sprintf("Winston: %s %s", o.Level, hostname)
	}
	if !o.ServiceMode() {
		if o.Port <= 0 {
			o.Port = DefaultPort
		}
		if o.TimeoutMs <= 0 {
			o.TimeoutMs = DefaultTimeoutMs
		}
	}
	return o, nil
}

func defaultHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
