package snowflake

import (
	"log/slog"

	"github.com/leapstack-labs/cadac/pkg/adapter"
)

func init() {
	adapter.Register(Dialect, func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
