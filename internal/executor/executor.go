// Package executor provides query execution against backing stores behind a
// capability interface, plus policy-aware schema discovery. ClickHouse is the
// one implemented backend; the other datasource kinds fail fast.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guzun-corp/tsight-agent/internal/domain"
	"github.com/guzun-corp/tsight-agent/internal/filter"
	"github.com/guzun-corp/tsight-agent/internal/telemetry"
)

// Executor is the capability contract the dispatch loop and the discovery
// runner depend on. Each call is independent; no session state is held
// beyond the live connection established by Connect.
type Executor interface {
	// Connect establishes and verifies connectivity with a trivial
	// round-trip query. Failure is reported as a connection failure.
	Connect(ctx context.Context) error
	// ExecuteTS runs a query expected to return the fixed (timestamp,
	// count) observation shape.
	ExecuteTS(ctx context.Context, query string) ([]domain.Record, error)
	// ExecuteJob runs an arbitrary-shape query and applies the row
	// scrubber before returning.
	ExecuteJob(ctx context.Context, query string) ([]domain.Row, error)
	// DiscoverSchemas walks the store catalog under the active policy.
	DiscoverSchemas(ctx context.Context) ([]domain.TableSchema, error)
	// Close releases the underlying connection pool.
	Close() error
}

// Options carries construction-time settings shared by all backends.
type Options struct {
	// DiscoveryConcurrency bounds the per-table fan-out during schema
	// discovery. Zero or negative selects the default.
	DiscoveryConcurrency int
	Logger               *slog.Logger
	// Metrics is optional; when set, executors record scrub counts on it.
	Metrics *telemetry.Metrics
}

// Open creates an executor for the datasource. Unimplemented backends
// return an error rather than a silent no-op.
func Open(ds domain.DataSource, policy *filter.Policy, opts Options) (Executor, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch ds.SourceType {
	case domain.SourceClickhouse:
		return newClickhouseExecutor(ds, policy, opts)
	case domain.SourcePostgreSQL, domain.SourceMySQL, domain.SourcePrometheus:
		return nil, fmt.Errorf("datasource %q: %s executor not implemented", ds.Name, ds.SourceType)
	default:
		return nil, fmt.Errorf("datasource %q: unknown source type %q", ds.Name, ds.SourceType)
	}
}
