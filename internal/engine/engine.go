// Package engine executes catalog models against a target database in
// dependency order.
package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/leapstack-labs/cadac/internal/metrics"
	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Recorder persists finished run reports.
type Recorder interface {
	SaveReport(ctx context.Context, report *core.RunReport) error
}

// Config holds engine configuration.
type Config struct {
	// Adapters resolves targets to adapters. Defaults to adapter.DefaultRegistry.
	Adapters *adapter.Registry
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Clock times runs and models. Defaults to the real clock.
	Clock clockwork.Clock
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Recorder is optional. Failures to record are logged, not returned.
	Recorder Recorder
}

// Engine orchestrates the execution of SQL models. An Engine holds no
// per-run state and may be reused.
type Engine struct {
	adapters      *adapter.Registry
	logger        *slog.Logger
	clock         clockwork.Clock
	metrics       *metrics.Metrics
	recorder      Recorder
	materializers map[core.Materialization]Materializer
}

// New creates an engine with the table and view materializations
// registered.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	adapters := cfg.Adapters
	if adapters == nil {
		adapters = adapter.DefaultRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Engine{
		adapters:      adapters,
		logger:        logger,
		clock:         clock,
		metrics:       cfg.Metrics,
		recorder:      cfg.Recorder,
		materializers: make(map[core.Materialization]Materializer),
	}
	e.RegisterMaterializer(core.MaterializeTable, TableMaterializer{})
	e.RegisterMaterializer(core.MaterializeView, ViewMaterializer{})
	return e
}

// RegisterMaterializer adds or replaces an execution mode.
func (e *Engine) RegisterMaterializer(name core.Materialization, m Materializer) {
	e.materializers[name] = m
}

// Materializations returns the registered execution modes, sorted.
func (e *Engine) Materializations() []string {
	names := make([]string, 0, len(e.materializers))
	for name := range e.materializers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
