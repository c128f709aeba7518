package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/guzun-corp/tsight-agent/internal/domain"
	"github.com/guzun-corp/tsight-agent/internal/filter"
	"github.com/guzun-corp/tsight-agent/internal/telemetry"
)

// clickhouseExecutor runs queries against a ClickHouse server through
// database/sql and enforces the filter policy on everything it returns.
type clickhouseExecutor struct {
	name       string
	db         *sql.DB
	policy     *filter.Policy
	discoverer *Discoverer
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

var _ Executor = (*clickhouseExecutor)(nil)

func newClickhouseExecutor(ds domain.DataSource, policy *filter.Policy, opts Options) (*clickhouseExecutor, error) {
	addrs, protocol, err := clickhouseAddrs(ds.Hosts)
	if err != nil {
		return nil, err
	}

	settings := clickhouse.Settings{}
	if ds.TimeoutSeconds > 0 {
		settings["max_execution_time"] = ds.TimeoutSeconds
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr:     addrs,
		Protocol: protocol,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: ds.Username,
			Password: ds.Password,
		},
		DialTimeout: 10 * time.Second,
		Settings:    settings,
	})

	e := &clickhouseExecutor{
		name:    ds.Name,
		db:      db,
		policy:  policy,
		logger:  opts.Logger.With("datasource", ds.Name),
		metrics: opts.Metrics,
	}
	e.discoverer = NewDiscoverer(e, policy, opts.DiscoveryConcurrency, e.logger)
	return e, nil
}

// clickhouseAddrs normalizes configured hosts into driver addresses.
// URL-style hosts (http://host:8123) select the HTTP protocol; bare
// host:port entries use the native protocol.
func clickhouseAddrs(hosts []string) ([]string, clickhouse.Protocol, error) {
	if len(hosts) == 0 {
		return nil, clickhouse.Native, fmt.Errorf("no hosts configured")
	}

	protocol := clickhouse.Native
	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if !strings.Contains(h, "://") {
			addrs = append(addrs, h)
			continue
		}
		u, err := url.Parse(h)
		if err != nil {
			return nil, protocol, fmt.Errorf("parse host %q: %w", h, err)
		}
		switch u.Scheme {
		case "http", "https":
			protocol = clickhouse.HTTP
		default:
			return nil, protocol, fmt.Errorf("unsupported host scheme %q in %q", u.Scheme, h)
		}
		addrs = append(addrs, u.Host)
	}
	return addrs, protocol, nil
}

func (e *clickhouseExecutor) Connect(ctx context.Context) error {
	var one int
	if err := e.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return domain.ErrConnection("%v", err)
	}
	e.logger.Debug("connected to clickhouse")
	return nil
}

func (e *clickhouseExecutor) ExecuteTS(ctx context.Context, query string) ([]domain.Record, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []domain.Record
	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.T, &r.Cnt); err != nil {
			return nil, domain.ErrExecution("scan observation row: %v", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("%v", err)
	}

	e.logger.Debug("observation query executed", "rows", len(records))
	return records, nil
}

func (e *clickhouseExecutor) ExecuteJob(ctx context.Context, query string) ([]domain.Row, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}

	var result []domain.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, domain.ErrExecution("scan job row: %v", err)
		}

		row := make(domain.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("%v", err)
	}

	kept, dropped := e.policy.ScrubRows(result)
	if dropped > 0 {
		e.logger.Info("scrubbed job rows", "dropped", dropped, "kept", len(kept))
		if e.metrics != nil {
			e.metrics.RowsScrubbed.Add(float64(dropped))
		}
	}
	return kept, nil
}

func (e *clickhouseExecutor) DiscoverSchemas(ctx context.Context) ([]domain.TableSchema, error) {
	return e.discoverer.Discover(ctx)
}

func (e *clickhouseExecutor) Close() error {
	return e.db.Close()
}

// CatalogStore implementation: ClickHouse exposes its catalog through the
// system database.

func (e *clickhouseExecutor) ListDatabases(ctx context.Context) ([]string, error) {
	return e.queryNames(ctx, "SELECT name FROM system.databases")
}

func (e *clickhouseExecutor) ListTables(ctx context.Context, database string) ([]string, error) {
	return e.queryNames(ctx, "SELECT name FROM system.tables WHERE database = ?", database)
}

func (e *clickhouseExecutor) ListColumns(ctx context.Context, database, table string) ([]Column, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT name, type FROM system.columns WHERE database = ? AND table = ?",
		database, table)
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	defer rows.Close() //nolint:errcheck

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, domain.ErrExecution("scan column metadata: %v", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	return cols, nil
}

func (e *clickhouseExecutor) RowCount(ctx context.Context, database, table string) (uint64, error) {
	var count uint64
	q := fmt.Sprintf("SELECT count() FROM %s.%s", quoteIdent(database), quoteIdent(table))
	if err := e.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, domain.ErrExecution("%v", err)
	}
	return count, nil
}

func (e *clickhouseExecutor) ColumnCardinality(ctx context.Context, database, table, column string) (uint64, error) {
	var count uint64
	q := fmt.Sprintf("SELECT uniq(%s) FROM %s.%s",
		quoteIdent(column), quoteIdent(database), quoteIdent(table))
	if err := e.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, domain.ErrExecution("%v", err)
	}
	return count, nil
}

func (e *clickhouseExecutor) queryNames(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.ErrExecution("scan name: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	return names, nil
}

// quoteIdent wraps an identifier in backticks, escaping embedded backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}
