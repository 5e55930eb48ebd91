package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lendpool/locator/internal/config"
)

const version = "0.3.0"

var (
	cfgPath  string
	logLevel string
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:     "locator",
		Short:   "Short-sale locate fee pricing service",
		Version: version,
		Long: `locator resolves per-ticker borrow rates from market data feeds,
prices locate fees against client billing configuration, and serves
both over HTTP. Subcommands run the server, one-shot lookups, and
database maintenance against the same config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (built-in defaults when omitted)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(serveCmd())
	root.AddCommand(rateCmd())
	root.AddCommand(feeCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())

	return root.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
