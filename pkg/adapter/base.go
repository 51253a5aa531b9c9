package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Classifier maps a driver error to an error kind and database code.
type Classifier func(err error) (kind core.ErrorKind, code string)

// BaseSQLConnection provides a database/sql backed Connection.
// Embed this struct in concrete adapter connections to get standard
// transactional Execute and Close implementations.
type BaseSQLConnection struct {
	DB       *sql.DB
	Logger   *slog.Logger
	Classify Classifier
}

// Close closes the database handle.
func (b *BaseSQLConnection) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Execute runs the statements in one transaction. The transaction holds a
// single pooled connection that is released on commit or rollback.
func (b *BaseSQLConnection) Execute(ctx context.Context, statements ...string) (*core.ExecResult, error) {
	if b.DB == nil {
		return nil, &core.ExecutionError{Kind: core.KindConnectivity, Err: errors.New("database connection not established")}
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, b.wrap(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}

	var last sql.Result
	for i, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			b.rollback(tx)
			return nil, b.wrap(ctx, fmt.Errorf("statement %d: %w", i+1, err))
		}
		last = res
	}

	if err := tx.Commit(); err != nil {
		return nil, b.wrap(ctx, fmt.Errorf("failed to commit: %w", err))
	}

	result := &core.ExecResult{}
	if last != nil {
		if n, err := last.RowsAffected(); err == nil {
			result.RowsAffected = n
		}
	}
	return result, nil
}

func (b *BaseSQLConnection) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) && b.Logger != nil {
		b.Logger.Warn("rollback failed", "error", err)
	}
}

func (b *BaseSQLConnection) wrap(ctx context.Context, err error) error {
	kind, code := core.KindUnknown, ""
	if b.Classify != nil {
		kind, code = b.Classify(err)
	}
	if kind == core.KindTimeout || errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = core.KindTimeout
		err = &core.TimeoutError{Op: "execute", Err: err}
	}
	return &core.ExecutionError{Kind: kind, Code: code, Err: err}
}
