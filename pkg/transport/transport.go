package transport

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Callback is invoked once when a transport finishes handling a record.
type Callback func(err error)

// Transport is a log sink that zap forwards records to.
type Transport interface {
	// Name identifies the transport instance.
	Name() string
	// Level is the minimum severity the transport accepts.
	Level() zapcore.Level
	// HandleExceptions reports whether recovered panics should be routed here.
	HandleExceptions() bool
	// Log handles a single record. It must not block on I/O and must call
	// done, when non-nil, exactly once.
	Log(level, message string, meta interface{}, done Callback)
}

var levelAliases = map[string]zapcore.Level{
	"silly":    zapcore.DebugLevel,
	"verbose":  zapcore.DebugLevel,
	"http":     zapcore.InfoLevel,
	"notice":   zapcore.InfoLevel,
	"warning":  zapcore.WarnLevel,
	"crit":     zapcore.DPanicLevel,
	"alert":    zapcore.PanicLevel,
	"emerg":    zapcore.FatalLevel,
	"critical": zapcore.DPanicLevel,
}

// ParseLevel accepts zap level names as well as the npm and syslog level
// names common in transport configuration.
func ParseLevel(s string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if lvl, ok := levelAliases[name]; ok {
		return lvl, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
