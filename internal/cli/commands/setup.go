// Package commands implements the cadac subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/internal/config"
	"github.com/leapstack-labs/cadac/internal/state"

	// Adapters register themselves with the default registry.
	_ "github.com/leapstack-labs/cadac/pkg/adapters/databricks"
	_ "github.com/leapstack-labs/cadac/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/cadac/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/cadac/pkg/adapters/snowflake"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig stores the loaded configuration and logger in ctx.
func WithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) (*config.Config, error) {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c, nil
	}
	return nil, errors.New("configuration not loaded")
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext collects the dependencies PersistentPreRunE stored.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := GetConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	return &CommandContext{Cfg: cfg, Logger: GetLogger(cmd.Context())}, nil
}

// LoadCatalog discovers the configured models directory.
func (c *CommandContext) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cat, err := catalog.Load(ctx, c.Cfg.ModelsDir, catalog.Options{
		DefaultSchema: c.Cfg.DefaultSchema,
		Workers:       c.Cfg.Workers,
		Logger:        c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover models in %s: %w", c.Cfg.ModelsDir, err)
	}
	return cat, nil
}

// OpenStore opens the run history database, creating its directory. It
// returns nil without error when state_path is empty.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.SQLiteStore, error) {
	if c.Cfg.StatePath == "" {
		return nil, nil
	}
	if dir := filepath.Dir(c.Cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store, err := state.OpenAndMigrate(ctx, c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}
