// Package databricks declares the Databricks SQL adapter. Connection
// strings are validated and identifiers quoted, but no driver is wired yet,
// so Connect always fails with *core.NotImplementedError.
package databricks

import (
	"context"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Dialect is the name the adapter registers under.
const Dialect = "databricks"

// Adapter implements adapter.Adapter for Databricks SQL warehouses.
type Adapter struct {
	logger *slog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a Databricks adapter. If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Dialect returns the SQL dialect for this adapter.
func (a *Adapter) Dialect() string { return Dialect }

// Schemes returns the accepted connection string schemes.
func (a *Adapter) Schemes() []string { return []string{"databricks"} }

// ValidateConnectionString requires a databricks:// URL with a workspace
// host and an HTTP path to the warehouse.
func (a *Adapter) ValidateConnectionString(connStr string) error {
	u, err := adapter.ValidateURL(Dialect, connStr, a.Schemes()...)
	if err != nil {
		return err
	}
	if strings.Trim(u.Path, "/") == "" {
		return &core.InvalidConnectionStringError{Dialect: Dialect, Reason: "missing warehouse http path"}
	}
	return nil
}

// QuoteIdentifier quotes an identifier with backticks.
func (a *Adapter) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Connect validates cfg and reports that execution is not available.
func (a *Adapter) Connect(_ context.Context, cfg core.AdapterConfig) (adapter.Connection, error) {
	if err := a.ValidateConnectionString(cfg.ConnectionString); err != nil {
		return nil, err
	}
	a.logger.Debug("databricks connect requested", "dialect", Dialect)
	return nil, &core.NotImplementedError{Dialect: Dialect, Op: "connect"}
}
