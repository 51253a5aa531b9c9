// Package adapter provides the database adapter contract for CADAC's
// execution engine.
//
// This package contains the public contract that all database adapters must implement.
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves with DefaultRegistry when imported.
package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Adapter is a dialect-specific connection factory.
type Adapter interface {
	// Dialect returns the dialect name the adapter is registered under.
	Dialect() string

	// Schemes returns the connection string URI schemes the adapter accepts.
	Schemes() []string

	// ValidateConnectionString checks a connection string without any I/O.
	// It returns *core.InvalidConnectionStringError for malformed input.
	ValidateConnectionString(connStr string) error

	// QuoteIdentifier quotes one identifier for the dialect.
	QuoteIdentifier(name string) string

	// Connect opens a connection. Failures are *core.ConnectionError.
	Connect(ctx context.Context, cfg core.AdapterConfig) (Connection, error)
}

// Connection executes model SQL.
type Connection interface {
	// Execute runs the statements in one transaction, committing on
	// success and rolling back on the first failure. Failures are
	// *core.ExecutionError.
	Execute(ctx context.Context, statements ...string) (*core.ExecResult, error)

	// Close releases the connection and any pooled resources.
	Close() error
}

// QuoteQualified quotes a schema-qualified name for the adapter's dialect.
func QuoteQualified(a Adapter, schema, table string) string {
	return a.QuoteIdentifier(schema) + "." + a.QuoteIdentifier(table)
}

// ValidateURL checks that connStr is a URL with one of the given schemes
// and a host.
func ValidateURL(dialect, connStr string, schemes ...string) (*url.URL, error) {
	invalid := func(reason string) error {
		return &core.InvalidConnectionStringError{Dialect: dialect, Reason: reason}
	}

	if strings.TrimSpace(connStr) == "" {
		return nil, invalid("connection string is empty")
	}

	matched := false
	for _, s := range schemes {
		if strings.HasPrefix(connStr, s+"://") {
			matched = true
			break
		}
	}
	if !matched {
		prefixes := make([]string, len(schemes))
		for i, s := range schemes {
			prefixes[i] = s + "://"
		}
		return nil, invalid(fmt.Sprintf("must start with %s", strings.Join(prefixes, " or ")))
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if u.Host == "" {
		return nil, invalid("missing host")
	}
	return u, nil
}

// SchemeOf returns the URI scheme of a connection string, or empty.
func SchemeOf(connStr string) string {
	scheme, _, found := strings.Cut(connStr, "://")
	if !found {
		return ""
	}
	return strings.ToLower(scheme)
}
