// Package postgres provides a PostgreSQL database adapter for CADAC.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/lib/pq"

	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Dialect is the name the adapter registers under.
const Dialect = "postgres"

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	logger *slog.Logger

	// openDB and newBackOff are replaced in tests.
	openDB     func(connStr string) (*sql.DB, error)
	newBackOff func() backoff.BackOff
}

// Connection is an open PostgreSQL connection pool.
type Connection struct {
	adapter.BaseSQLConnection
}

var (
	_ adapter.Adapter    = (*Adapter)(nil)
	_ adapter.Connection = (*Connection)(nil)
)

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		logger: logger,
		openDB: func(connStr string) (*sql.DB, error) {
			return sql.Open("pgx", connStr)
		},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() string {
	return Dialect
}

// Schemes returns the accepted connection string schemes.
func (a *Adapter) Schemes() []string {
	return []string{"postgres", "postgresql"}
}

// ValidateConnectionString requires a postgres:// or postgresql:// URL
// with a host.
func (a *Adapter) ValidateConnectionString(connStr string) error {
	_, err := adapter.ValidateURL(Dialect, connStr, a.Schemes()...)
	return err
}

// QuoteIdentifier quotes an identifier with double quotes.
func (a *Adapter) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// Connect opens a connection pool and checks it with a ping. Connectivity
// failures are retried with exponential backoff up to cfg.MaxRetries
// times; any other failure is returned at once.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) (adapter.Connection, error) {
	if err := a.ValidateConnectionString(cfg.ConnectionString); err != nil {
		return nil, err
	}

	attempt := 0
	db, err := backoff.Retry(ctx, func() (*sql.DB, error) {
		attempt++
		db, err := a.open(ctx, cfg)
		if err == nil {
			return db, nil
		}
		if kind, _ := classify(err); kind != core.KindConnectivity && kind != core.KindTimeout {
			return nil, backoff.Permanent(err)
		}
		a.logger.Warn("postgres connection attempt failed", "attempt", attempt, "error", err)
		return nil, err
	},
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(cfg.MaxRetries+1),
	)
	if err != nil {
		return nil, &core.ConnectionError{Dialect: Dialect, Err: err}
	}

	a.logger.Debug("connected to postgres", "attempts", attempt)

	return &Connection{adapter.BaseSQLConnection{
		DB:       db,
		Logger:   a.logger,
		Classify: classify,
	}}, nil
}

func (a *Adapter) open(ctx context.Context, cfg core.AdapterConfig) (*sql.DB, error) {
	db, err := a.openDB(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &core.TimeoutError{Op: "connect", After: cfg.ConnectTimeout, Err: err}
		}
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}
