package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/logmail/pkg/config"
	"github.com/telekom/logmail/pkg/mail"
	"github.com/telekom/logmail/pkg/system"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// MailFactory replaces the client factory of every mail transport.
	MailFactory mail.Factory
	// BaseContext is the parent of every command context.
	BaseContext context.Context
}

type runtimeState struct {
	configPath string
	cfg        config.Config
	debug      bool
	writer     io.Writer
	factory    mail.Factory
	logger     *zap.Logger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   getEnvString(config.EnvConfigPath, ""),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		writer:     cfg.OutputWriter,
		factory:    cfg.MailFactory,
	}

	root := &cobra.Command{
		Use:          "logmail",
		Short:        "Deliver log records by email",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if !rt.debug {
				rt.debug = getEnvBool("LOGMAIL_DEBUG", false)
			}

			// Skip config loading for commands that don't need it
			switch cmd.Name() {
			case "version", "completion", "services":
				return rt.setupLogger(config.DefaultLogLevel, false)
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return rt.setupLogger(loaded.Logging.Level, loaded.Logging.Development)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file (env LOGMAIL_CONFIG_PATH, default ./config.yaml)")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug level logging")

	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	root.SetContext(context.WithValue(base, runtimeKey{}, rt))

	root.AddCommand(
		NewSendCommand(),
		NewVerifyCommand(),
		NewServeCommand(),
		NewServicesCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func (rt *runtimeState) setupLogger(level string, development bool) error {
	if rt.debug {
		level = "debug"
		development = true
	}
	logger, err := system.NewLogger(level, development)
	if err != nil {
		return err
	}
	rt.logger = logger
	return nil
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer == nil {
		return os.Stdout
	}
	return rt.writer
}

func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger == nil {
		return zap.NewNop()
	}
	return rt.logger
}
