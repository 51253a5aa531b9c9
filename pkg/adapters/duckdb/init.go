package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/cadac/pkg/adapter"
)

// Importing this package registers the adapter:
//
//	import _ "github.com/leapstack-labs/cadac/pkg/adapters/duckdb"
func init() {
	adapter.Register(Dialect, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
