package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/telekom/logmail/pkg/config"
	"github.com/telekom/logmail/pkg/metrics"
	"github.com/telekom/logmail/pkg/ratelimit"
	"github.com/telekom/logmail/pkg/system"
	"github.com/telekom/logmail/pkg/transport"
	"github.com/telekom/logmail/pkg/version"
)

// DefaultRecordLevel applies to posted records without a level.
const DefaultRecordLevel = "info"

// maxRecordLevel is the most severe level accepted over HTTP. Panic and fatal
// entries would take the server down.
const maxRecordLevel = zapcore.ErrorLevel

type Server struct {
	gin        *gin.Engine
	config     config.Server
	log        *zap.SugaredLogger
	target     *zap.Logger
	transports []transport.Transport
	limiter    *ratelimit.ClientRateLimiter
}

// LogRequest is the body of POST /api/logs.
type LogRequest struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message" binding:"required"`
	Meta    map[string]interface{} `json:"meta"`
}

// LogResponse lists the transports whose threshold admitted the record.
type LogResponse struct {
	Accepted   bool     `json:"accepted"`
	Level      string   `json:"level"`
	Transports []string `json:"transports"`
}

// TransportInfo describes one configured transport.
type TransportInfo struct {
	Name             string `json:"name"`
	Level            string `json:"level"`
	HandleExceptions bool   `json:"handleExceptions"`
}

// NewServer wires routes. log receives access and diagnostic logs; target is
// the logger posted records are written to and usually tees log's core with
// one core per transport.
func NewServer(log *zap.Logger, cfg config.Server, debug bool,
	target *zap.Logger, transports []transport.Transport,
) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	sugar := log.Sugar().Named("api")

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		system.RequestLogger(sugar),
	)

	if target == nil {
		target = transport.NewLogger(nil, transports)
	}

	s := &Server{
		gin:        engine,
		config:     cfg,
		log:        sugar,
		target:     target,
		transports: transports,
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("api")
	api.GET("buildinfo", s.buildInfo)
	api.GET("transports", s.listTransports)
	if cfg.RateLimit != nil {
		s.limiter = ratelimit.New(*cfg.RateLimit)
		api.POST("logs", s.limiter.Middleware("logs"), s.postLog)
	} else {
		api.POST("logs", s.postLog)
	}

	return s
}

// Close releases background resources. Listen calls it on return; servers
// used only through Handler must call it themselves.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	defer s.Close()
	timeouts := s.config.GetServerTimeouts()
	srv := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.gin,
		ReadTimeout:       timeouts.GetReadTimeout(),
		ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
		WriteTimeout:      timeouts.GetWriteTimeout(),
		IdleTimeout:       timeouts.GetIdleTimeout(),
		MaxHeaderBytes:    timeouts.GetMaxHeaderBytes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("HTTP server listening", "address", s.config.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GetShutdownTimeout())
	defer cancel()
	s.log.Infow("Shutting down HTTP server", "timeout", s.config.GetShutdownTimeout())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if len(s.transports) == 0 {
		RespondServiceUnavailable(c, "no transports configured")
		return
	}
	RespondOK(c, gin.H{"status": "ok", "transports": len(s.transports)})
}

func (s *Server) buildInfo(c *gin.Context) {
	RespondOK(c, version.GetBuildInfo())
}

func (s *Server) listTransports(c *gin.Context) {
	out := make([]TransportInfo, 0, len(s.transports))
	for _, t := range s.transports {
		out = append(out, TransportInfo{
			Name:             t.Name(),
			Level:            t.Level().String(),
			HandleExceptions: t.HandleExceptions(),
		})
	}
	RespondOK(c, out)
}

func (s *Server) postLog(c *gin.Context) {
	reqLog := system.GetReqLogger(c, s.log)

	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequestWithDetails(c, "invalid log record", err.Error())
		return
	}
	if req.Level == "" {
		req.Level = DefaultRecordLevel
	}
	lvl, err := transport.ParseLevel(req.Level)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	if lvl > maxRecordLevel {
		RespondUnprocessableEntity(c, fmt.Sprintf("level %q is not accepted over HTTP", req.Level))
		return
	}

	if ce := s.target.Check(lvl, req.Message); ce != nil {
		ce.Write(metaFields(req.Meta)...)
	}

	names := make([]string, 0, len(s.transports))
	for _, t := range s.transports {
		if t.Level().Enabled(lvl) {
			names = append(names, t.Name())
		}
	}
	reqLog.Debugw("Accepted log record", "level", lvl.String(), "transports", names)

	RespondAccepted(c, LogResponse{Accepted: true, Level: lvl.String(), Transports: names})
}

// metaFields turns posted metadata into zap fields in key order.
func metaFields(meta map[string]interface{}) []zap.Field {
	if len(meta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, meta[k]))
	}
	return fields
}
