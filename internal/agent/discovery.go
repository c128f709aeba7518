package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guzun-corp/tsight-agent/internal/executor"
	"github.com/guzun-corp/tsight-agent/internal/telemetry"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

// DiscoveryRunner discovers and submits schemas for every configured
// datasource. One datasource's failure is reported and skipped; the rest of
// the run continues.
type DiscoveryRunner struct {
	deps   Deps
	logger *slog.Logger
}

// NewDiscoveryRunner creates a discovery runner.
func NewDiscoveryRunner(deps Deps) *DiscoveryRunner {
	deps.fill()
	return &DiscoveryRunner{deps: deps, logger: deps.Logger.With("component", "discovery")}
}

// Run walks all datasources once.
func (r *DiscoveryRunner) Run(ctx context.Context) {
	for _, ds := range r.deps.Datasources {
		start := time.Now()
		err := r.discoverDatasource(ctx, ds)

		status := telemetry.StatusOK
		if err != nil {
			status = telemetry.StatusError
			r.logger.Error("failed to discover schemas for datasource",
				"datasource", ds.Name, "error", err)
		}
		if r.deps.Metrics != nil {
			r.deps.Metrics.DiscoveryRuns.WithLabelValues(status).Inc()
			r.deps.Metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// discoverDatasource registers the datasource on the server, connects,
// discovers its schemas under the policy and submits them.
func (r *DiscoveryRunner) discoverDatasource(ctx context.Context, ds domain.DataSource) error {
	r.logger.Info("discovering schemas for datasource", "datasource", ds.Name)

	if err := r.deps.Client.UpsertDatasource(ctx, ds.Name, ds.SourceType.String()); err != nil {
		return fmt.Errorf("register datasource: %w", err)
	}

	exec, err := r.deps.NewExecutor(ds, r.deps.Policy, executor.Options{
		DiscoveryConcurrency: r.deps.DiscoveryConcurrency,
		Logger:               r.logger,
		Metrics:              r.deps.Metrics,
	})
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	if err := exec.Connect(ctx); err != nil {
		return err
	}

	schemas, err := exec.DiscoverSchemas(ctx)
	if err != nil {
		return err
	}

	if err := r.deps.Client.SubmitSchemas(ctx, ds.Name, schemas); err != nil {
		return fmt.Errorf("submit schemas: %w", err)
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.DiscoveryTables.Add(float64(len(schemas)))
	}
	r.logger.Info("submitted schemas for datasource",
		"datasource", ds.Name, "tables", len(schemas))
	return nil
}
