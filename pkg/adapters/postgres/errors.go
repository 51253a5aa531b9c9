package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// classify maps a pgx error to an error kind using its SQLSTATE.
func classify(err error) (core.ErrorKind, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return kindForSQLState(pgErr.Code), pgErr.Code
	}

	var timeoutErr *core.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return core.KindTimeout, ""
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return core.KindConnectivity, ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return core.KindConnectivity, ""
	}

	return core.KindUnknown, ""
}

// kindForSQLState groups SQLSTATE codes by the error kinds the engine
// reports. See https://www.postgresql.org/docs/current/errcodes-appendix.html.
func kindForSQLState(code string) core.ErrorKind {
	switch code {
	case "42P01", "42703", "42883", "42704", "3F000":
		return core.KindUndefinedObject
	case "42501":
		return core.KindPermission
	case "57014":
		return core.KindTimeout
	case "57P01", "57P02", "57P03":
		return core.KindConnectivity
	}

	switch {
	case strings.HasPrefix(code, "42"):
		return core.KindSyntax
	case strings.HasPrefix(code, "23"):
		return core.KindConstraint
	case strings.HasPrefix(code, "08"):
		return core.KindConnectivity
	case strings.HasPrefix(code, "28"):
		return core.KindPermission
	}
	return core.KindUnknown
}
