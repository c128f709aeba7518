// Package main is the entry point for the tsight agent binary.
// The agent polls the tsight server for observation tasks and ad-hoc jobs,
// executes them against the configured datasources under the filter policy,
// and keeps the server's schema catalog fresh via periodic discovery.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guzun-corp/tsight-agent/internal/agent"
	"github.com/guzun-corp/tsight-agent/internal/config"
	"github.com/guzun-corp/tsight-agent/internal/filter"
	"github.com/guzun-corp/tsight-agent/internal/server"
	"github.com/guzun-corp/tsight-agent/internal/telemetry"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tsight-agent",
		Short:         "tsight monitoring agent",
		Long:          "Agent that executes tsight observation tasks and jobs against configured datasources.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config.yaml (default: platform config dir, then ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "discover",
		Short: "Run schema discovery once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscoverOnce(cmd.Context(), configPath)
		},
	})

	return rootCmd
}

// setup loads the configuration and builds the pieces shared by both
// commands: logger, queue client, filter policy and metrics.
func setup(configPath string) (*config.Config, agent.Deps, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, agent.Deps{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, agent.Deps{}, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	policy, err := filter.NewPolicy(cfg.GlobalFilters)
	if err != nil {
		return nil, agent.Deps{}, fmt.Errorf("filter config: %w", err)
	}

	deps := agent.Deps{
		Client:               server.NewClient(cfg.Server.APIKey, cfg.Server.ServerURL),
		Datasources:          cfg.Datasources,
		Policy:               policy,
		Metrics:              telemetry.NewMetrics(),
		Logger:               logger,
		PollInterval:         cfg.PollInterval(),
		DiscoveryConcurrency: cfg.Discovery.Concurrency,
	}
	return cfg, deps, nil
}

func runAgent(ctx context.Context, configPath string) error {
	cfg, deps, err := setup(configPath)
	if err != nil {
		return err
	}
	logger := deps.Logger

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("agent starting",
		"version", version,
		"server_url", cfg.Server.ServerURL,
		"datasources", len(cfg.Datasources))

	var telemetrySrv *telemetry.Server
	if cfg.Telemetry.ListenAddr != "" {
		telemetrySrv = telemetry.NewServer(cfg.Telemetry.ListenAddr, deps.Metrics, logger)
		go func() {
			if err := telemetrySrv.Start(); err != nil {
				logger.Error("telemetry server failed", "error", err)
			}
		}()
	}

	// Catalog the stores before taking tasks so the server can target them.
	discovery := agent.NewDiscoveryRunner(deps)
	discovery.Run(ctx)

	scheduler, err := agent.NewDiscoveryScheduler(discovery, cfg.Discovery.Schedule, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	workers := []*agent.Worker{
		agent.NewObservationWorker(deps, true),
		agent.NewObservationWorker(deps, false),
		agent.NewJobWorker(deps),
	}
	for _, w := range workers {
		w := w
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := g.Wait(); err != nil {
		return err
	}
	if telemetrySrv != nil {
		if err := telemetrySrv.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}
	logger.Info("agent stopped")
	return nil
}

func runDiscoverOnce(ctx context.Context, configPath string) error {
	_, deps, err := setup(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	agent.NewDiscoveryRunner(deps).Run(ctx)
	return nil
}
