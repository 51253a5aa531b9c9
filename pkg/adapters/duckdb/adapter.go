// Package duckdb provides a DuckDB database adapter for CADAC. It targets a
// local database file, which makes it the adapter of choice for
// development and tests.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Dialect is the name the adapter registers under.
const Dialect = "duckdb"

const scheme = "duckdb"

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	logger *slog.Logger
}

// Connection is an open DuckDB database.
type Connection struct {
	adapter.BaseSQLConnection
}

var (
	_ adapter.Adapter    = (*Adapter)(nil)
	_ adapter.Connection = (*Connection)(nil)
)

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() string {
	return Dialect
}

// Schemes returns the accepted connection string schemes.
func (a *Adapter) Schemes() []string {
	return []string{scheme}
}

// ValidateConnectionString requires a duckdb:// connection string.
func (a *Adapter) ValidateConnectionString(connStr string) error {
	_, err := ParseConnectionString(connStr)
	return err
}

// QuoteIdentifier quotes an identifier with double quotes.
func (a *Adapter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Connect opens the database and loads the requested extensions.
// DuckDB runs in process, so there is nothing to retry.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) (adapter.Connection, error) {
	params, err := ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	db, err := a.open(ctx, params, cfg)
	if err != nil {
		return nil, &core.ConnectionError{Dialect: Dialect, Err: err}
	}

	a.logger.Debug("connected to duckdb", "path", params.Path, "in_memory", params.InMemory())

	return &Connection{adapter.BaseSQLConnection{
		DB:       db,
		Logger:   a.logger,
		Classify: classify,
	}}, nil
}

func (a *Adapter) open(ctx context.Context, params *Params, cfg core.AdapterConfig) (*sql.DB, error) {
	db, err := sql.Open("duckdb", params.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &core.TimeoutError{Op: "connect", After: cfg.ConnectTimeout, Err: err}
		}
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, ext := range params.Extensions {
		for _, stmt := range []string{"INSTALL " + ext, "LOAD " + ext} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
		a.logger.Debug("loaded duckdb extension", "extension", ext)
	}
	return db, nil
}
