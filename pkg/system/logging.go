// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// RequestIDHeader is propagated into the request-scoped logger when present.
const RequestIDHeader = "X-Request-ID"

// NewLogger builds the console logger. development selects the console
// encoder; level is parsed with zapcore and defaults to info when empty.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// NewTestLogger returns a sugared development logger without stacktraces.
func NewTestLogger() *zap.SugaredLogger {
	logger, err := NewLogger("debug", true)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// RequestLogger is gin middleware storing a logger annotated with the client
// IP and, when sent, the request id.
func RequestLogger(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ReqLoggerKey, EnrichReqLogger(c, base))
		c.Next()
	}
}

// EnrichReqLogger annotates reqLogger with request identity fields.
func EnrichReqLogger(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if c.Request != nil {
		if id := c.GetHeader(RequestIDHeader); id != "" {
			reqLogger = reqLogger.With("requestID", id)
		}
		reqLogger = reqLogger.With("clientIP", c.ClientIP())
	}
	return reqLogger
}
