package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/telekom/logmail/pkg/events"
	"github.com/telekom/logmail/pkg/ratelimit"
	"github.com/telekom/logmail/pkg/telemetry"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "LOGMAIL_CONFIG_PATH"

// DefaultConfigPath is used when neither a path argument nor EnvConfigPath is set.
const DefaultConfigPath = "./config.yaml"

const (
	DefaultListenAddress     = ":8080"
	DefaultLogLevel          = "info"
	DefaultReadTimeout       = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 60 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	DefaultShutdownTimeout   = 30 * time.Second
)

// ErrNoTransportType is returned for a transports entry without a type.
var ErrNoTransportType = errors.New("transport entry has no type")

type Logging struct {
	// Level is the minimum level of the console logger ("debug", "info", ...).
	Level string `yaml:"level"`
	// Development switches to the human friendly console encoder.
	Development bool `yaml:"development"`
}

type Metrics struct {
	// ListenAddress serves /metrics on its own port when set. Empty disables it
	// unless the HTTP server is running, which always exposes /metrics.
	ListenAddress string `yaml:"listenAddress"`
}

// ServerTimeouts holds HTTP server timeouts as duration strings ("30s", "2m").
type ServerTimeouts struct {
	ReadTimeout       string `yaml:"readTimeout"`
	ReadHeaderTimeout string `yaml:"readHeaderTimeout"`
	WriteTimeout      string `yaml:"writeTimeout"`
	IdleTimeout       string `yaml:"idleTimeout"`
	MaxHeaderBytes    int    `yaml:"maxHeaderBytes"`
}

type Server struct {
	ListenAddress   string          `yaml:"listenAddress"`
	Timeouts        *ServerTimeouts `yaml:"timeouts"`
	ShutdownTimeout string          `yaml:"shutdownTimeout"`
	// RateLimit limits POST /api/logs per client IP. Unset disables limiting.
	RateLimit *ratelimit.Config `yaml:"rateLimit"`
}

type Events struct {
	// Log writes every transport event to the console logger.
	Log   bool                    `yaml:"log"`
	Kafka *events.KafkaSinkConfig `yaml:"kafka"`
	// CircuitBreaker guards the Kafka sink. Zero fields take the breaker defaults.
	CircuitBreaker *events.CircuitBreakerConfig `yaml:"circuitBreaker"`
	// Queue decouples the Kafka sink from delivery callbacks. Zero fields take
	// the queue defaults.
	Queue *events.QueueConfig `yaml:"queue"`
}

// TransportSpec is one entry of the transports list. Type selects the
// registered transport type; every other key belongs to that type.
type TransportSpec struct {
	Type    string                 `yaml:"type"`
	Options map[string]interface{} `yaml:",inline"`
}

type Config struct {
	Logging    Logging          `yaml:"logging"`
	Metrics    Metrics          `yaml:"metrics"`
	Tracing    telemetry.Config `yaml:"tracing"`
	Server     Server           `yaml:"server"`
	Events     Events           `yaml:"events"`
	Transports []TransportSpec  `yaml:"transports"`
}

// Load loads the logmail configuration from a file path.
// If configPath is empty, LOGMAIL_CONFIG_PATH is consulted, then "./config.yaml".
func Load(configPath ...string) (Config, error) {
	path := ResolvePath(configPath...)

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open logmail config file %s: %w", path, err)
	}

	return Parse(content)
}

// Parse decodes YAML content, applies defaults and validates transport entries.
func Parse(content []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("error unmarshaling YAML: %w", err)
	}
	config.applyDefaults()

	for i, spec := range config.Transports {
		if spec.Type == "" {
			return config, fmt.Errorf("transports[%d]: %w", i, ErrNoTransportType)
		}
	}
	return config, nil
}

// ResolvePath picks the config file location.
func ResolvePath(configPath ...string) string {
	if len(configPath) > 0 && configPath[0] != "" {
		return configPath[0]
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
}

// Decode re-encodes the type specific keys and strictly decodes them into
// into, so misspelled options fail instead of being dropped.
func (s TransportSpec) Decode(into interface{}) error {
	raw, err := yaml.Marshal(s.Options)
	if err != nil {
		return fmt.Errorf("encoding %s transport options: %w", s.Type, err)
	}
	if err := yaml.UnmarshalStrict(raw, into); err != nil {
		return fmt.Errorf("decoding %s transport options: %w", s.Type, err)
	}
	return nil
}

func parseDurationOrDefault(value string, defaultVal time.Duration) time.Duration {
	if value == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func (t *ServerTimeouts) GetReadTimeout() time.Duration {
	if t == nil {
		return DefaultReadTimeout
	}
	return parseDurationOrDefault(t.ReadTimeout, DefaultReadTimeout)
}

func (t *ServerTimeouts) GetReadHeaderTimeout() time.Duration {
	if t == nil {
		return DefaultReadHeaderTimeout
	}
	return parseDurationOrDefault(t.ReadHeaderTimeout, DefaultReadHeaderTimeout)
}

func (t *ServerTimeouts) GetWriteTimeout() time.Duration {
	if t == nil {
		return DefaultWriteTimeout
	}
	return parseDurationOrDefault(t.WriteTimeout, DefaultWriteTimeout)
}

func (t *ServerTimeouts) GetIdleTimeout() time.Duration {
	if t == nil {
		return DefaultIdleTimeout
	}
	return parseDurationOrDefault(t.IdleTimeout, DefaultIdleTimeout)
}

func (t *ServerTimeouts) GetMaxHeaderBytes() int {
	if t == nil || t.MaxHeaderBytes <= 0 {
		return DefaultMaxHeaderBytes
	}
	return t.MaxHeaderBytes
}

// GetServerTimeouts never returns nil; getters on the result yield defaults.
func (s Server) GetServerTimeouts() *ServerTimeouts {
	if s.Timeouts == nil {
		return &ServerTimeouts{}
	}
	return s.Timeouts
}

func (s Server) GetShutdownTimeout() time.Duration {
	return parseDurationOrDefault(s.ShutdownTimeout, DefaultShutdownTimeout)
}
