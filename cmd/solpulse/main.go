// Command solpulse runs the aggregation and serving backend: the sync
// loops that keep pulse_token/token/candle_cache warm, and the
// read-only HTTP surface C10 adapts onto them. Bootstrap follows a
// standard cobra entrypoint shape, scaled down to the one long-running
// "serve" job this process does.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pulseintel/solpulse/internal/config"
	"github.com/pulseintel/solpulse/internal/logging"
	"github.com/pulseintel/solpulse/internal/runtime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "solpulse",
		Short: "Solana token market-data aggregation and serving backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (defaults applied if omitted)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loops and the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.AddCommand(serveCmd)

	return root
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	app, err := runtime.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("solpulse running, press Ctrl+C to stop")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	return app.Shutdown(shutdownCtx)
}
