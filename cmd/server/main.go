package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/relay-server/internal/app"
	"github.com/vovakirdan/relay-server/internal/config"
	"github.com/vovakirdan/relay-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "relay-server [tcp-addr]",
		Short:         "Real-time line-oriented chat relay",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(overrides.LogLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				overrides.TCPAddr = args[0]
			}
			cfg.UpdateFrom(overrides)
			logger = log.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("config", path).
				Str("tcp_addr", cfg.TCPAddr).
				Str("http_addr", cfg.HTTPAddr).
				Msg("starting relay server")

			if err := app.New(cfg, logger).Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&overrides.TCPAddr, "tcp-addr", "", "TCP listen address (host:port)")
	cmd.Flags().StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address (host:port)")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	return cmd
}
