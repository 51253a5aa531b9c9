package duckdb

import (
	"context"
	"errors"

	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// classify maps a DuckDB error to an error kind using its error type.
func classify(err error) (core.ErrorKind, string) {
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		return kindForErrorType(duckErr.Type), ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.KindTimeout, ""
	}
	return core.KindUnknown, ""
}

func kindForErrorType(t duckdb.ErrorType) core.ErrorKind {
	switch t {
	case duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax:
		return core.KindSyntax
	case duckdb.ErrorTypeCatalog, duckdb.ErrorTypeBinder:
		return core.KindUndefinedObject
	case duckdb.ErrorTypeConstraint:
		return core.KindConstraint
	case duckdb.ErrorTypePermission:
		return core.KindPermission
	case duckdb.ErrorTypeInterrupt:
		return core.KindTimeout
	case duckdb.ErrorTypeConnection, duckdb.ErrorTypeNetwork, duckdb.ErrorTypeIO:
		return core.KindConnectivity
	}
	return core.KindUnknown
}
