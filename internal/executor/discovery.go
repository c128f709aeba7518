package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/guzun-corp/tsight-agent/internal/domain"
	"github.com/guzun-corp/tsight-agent/internal/filter"
)

// defaultDiscoveryConcurrency bounds the per-table fan-out when the
// configuration does not set a limit. Stores can hold thousands of tables;
// the fan-out must never be unbounded.
const defaultDiscoveryConcurrency = 8

// Column is one column's raw catalog entry: name plus the store's native
// type string.
type Column struct {
	Name string
	Type string
}

// CatalogStore is the slice of store capability the discoverer needs.
type CatalogStore interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]string, error)
	ListColumns(ctx context.Context, database, table string) ([]Column, error)
	RowCount(ctx context.Context, database, table string) (uint64, error)
	ColumnCardinality(ctx context.Context, database, table, column string) (uint64, error)
}

// Discoverer walks a store's catalog under the filter policy and produces
// the table schemas the policy permits, with best-effort statistics.
type Discoverer struct {
	store       CatalogStore
	policy      *filter.Policy
	concurrency int
	logger      *slog.Logger
}

// NewDiscoverer creates a Discoverer. A non-positive concurrency selects
// the default table fan-out bound.
func NewDiscoverer(store CatalogStore, policy *filter.Policy, concurrency int, logger *slog.Logger) *Discoverer {
	if concurrency <= 0 {
		concurrency = defaultDiscoveryConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		store:       store,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Discover enumerates databases, tables and columns, dropping everything the
// policy excludes. Tables within a database are discovered concurrently,
// bounded by the configured limit. A single table's failure is logged and
// skipped; catalog listing failures abort the run.
func (d *Discoverer) Discover(ctx context.Context) ([]domain.TableSchema, error) {
	databases, err := d.store.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}

	var schemas []domain.TableSchema
	for _, db := range databases {
		if d.policy.ExcludeDatabase(db) {
			d.logger.Debug("database excluded by policy", "database", db)
			continue
		}

		tables, err := d.store.ListTables(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("list tables for database %s: %w", db, err)
		}

		dbSchemas, err := d.discoverTables(ctx, db, tables)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, dbSchemas...)
	}
	return schemas, nil
}

// discoverTables fans out per-table discovery with bounded parallelism.
// Results keep the input table order so one run is deterministic.
func (d *Discoverer) discoverTables(ctx context.Context, db string, tables []string) ([]domain.TableSchema, error) {
	kept := make([]string, 0, len(tables))
	for _, t := range tables {
		if d.policy.ExcludeTable(t) {
			d.logger.Debug("table excluded by policy", "database", db, "table", t)
			continue
		}
		kept = append(kept, t)
	}

	results := make([]*domain.TableSchema, len(kept))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, table := range kept {
		i, table := i, table
		g.Go(func() error {
			schema, err := d.tableSchema(gctx, db, table)
			if err != nil {
				// Partial-result semantics: one table's failure must
				// not abort its siblings.
				d.logger.Error("table discovery failed",
					"database", db, "table", table, "error", err)
				return nil
			}
			results[i] = schema
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover tables in %s: %w", db, err)
	}

	schemas := make([]domain.TableSchema, 0, len(results))
	for _, s := range results {
		if s != nil {
			schemas = append(schemas, *s)
		}
	}
	return schemas, nil
}

// tableSchema discovers one table: retained columns with cardinality, plus
// the row count. Cardinality probes run sequentially so one failing column
// degrades only itself.
func (d *Discoverer) tableSchema(ctx context.Context, db, table string) (*domain.TableSchema, error) {
	cols, err := d.store.ListColumns(ctx, db, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s.%s: %w", db, table, err)
	}

	columns := make(map[string]domain.ColumnInfo, len(cols))
	for _, col := range cols {
		if d.policy.ExcludeColumn(col.Name) {
			// Omitted entirely: no type reported, no probe attempted.
			d.logger.Debug("column excluded by policy",
				"database", db, "table", table, "column", col.Name)
			continue
		}

		var cardinality *uint64
		if c, err := d.store.ColumnCardinality(ctx, db, table, col.Name); err != nil {
			d.logger.Warn("cardinality probe failed",
				"database", db, "table", table, "column", col.Name, "error", err)
		} else {
			cardinality = &c
		}

		columns[col.Name] = domain.ColumnInfo{
			TypeName:    simplifyType(col.Type),
			Cardinality: cardinality,
		}
	}

	rowCount, err := d.store.RowCount(ctx, db, table)
	if err != nil {
		return nil, fmt.Errorf("row count for %s.%s: %w", db, table, err)
	}

	return &domain.TableSchema{
		Database: db,
		Table:    table,
		RowCount: rowCount,
		Columns:  columns,
	}, nil
}

// simplifyType reduces a native ClickHouse type name to a coarse type.
// Anything unmapped is reported as string.
func simplifyType(nativeType string) string {
	switch {
	case strings.HasPrefix(nativeType, "Int"), strings.HasPrefix(nativeType, "UInt"):
		return "int"
	case strings.HasPrefix(nativeType, "Float"):
		return "float"
	case nativeType == "Bool" || nativeType == "Boolean":
		return "bool"
	case nativeType == "Date":
		return "date"
	case strings.HasPrefix(nativeType, "DateTime"):
		return "datetime"
	default:
		return "string"
	}
}
