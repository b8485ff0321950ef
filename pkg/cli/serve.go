package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telekom/logmail/pkg/api"
	"github.com/telekom/logmail/pkg/metrics"
	"github.com/telekom/logmail/pkg/transport"
)

func NewServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept log records over HTTP and deliver them through the configured transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			logger := rt.Logger()
			log := logger.Sugar()

			p, err := rt.buildPipeline()
			if err != nil {
				return err
			}
			defer transport.HandlePanics(p.transports...)

			serverCfg := rt.cfg.Server
			if listen != "" {
				serverCfg.ListenAddress = listen
			}

			target := transport.NewLogger(logger.Core(), p.transports)
			server := api.NewServer(logger, serverCfg, rt.debug, target, p.transports)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metricsDone := make(chan struct{})
			if addr := rt.cfg.Metrics.ListenAddress; addr != "" && addr != serverCfg.ListenAddress {
				go func() {
					defer close(metricsDone)
					serveMetrics(ctx, addr, rt)
				}()
			} else {
				close(metricsDone)
			}

			log.Infow("Starting logmail server",
				"address", serverCfg.ListenAddress,
				"transports", len(p.transports),
				"sinks", len(p.sinks))

			serveErr := server.Listen(ctx)
			stop()
			<-metricsDone

			_ = target.Sync()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.GetShutdownTimeout())
			defer cancel()
			return errors.Join(serveErr, p.close(shutdownCtx))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", getEnvString("LOGMAIL_LISTEN_ADDRESS", ""), "Listen address, overrides server.listenAddress")

	return cmd
}

// serveMetrics exposes /metrics on its own address until ctx is done.
func serveMetrics(ctx context.Context, addr string, rt *runtimeState) {
	log := rt.Logger().Sugar().Named("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.MetricsHandler())
	timeouts := rt.cfg.Server.GetServerTimeouts()
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: timeouts.GetReadHeaderTimeout(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.GetShutdownTimeout())
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("Metrics server listening", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("Metrics server failed", "error", err)
	}
}
