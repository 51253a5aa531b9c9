// Package config loads CADAC configuration from defaults, a cadac.yaml
// file, CADAC_* environment variables and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Config is the resolved configuration.
type Config struct {
	ModelsDir     string       `koanf:"models_dir"`
	DefaultSchema string       `koanf:"default_schema"`
	Workers       int          `koanf:"workers"`
	Target        TargetConfig `koanf:"target"`
	Run           RunConfig    `koanf:"run"`
	StatePath     string       `koanf:"state_path"`
	MetricsFile   string       `koanf:"metrics_file"`
	LogLevel      string       `koanf:"log_level"`
	Output        string       `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// TargetConfig names the database a run executes against.
type TargetConfig struct {
	Dialect string `koanf:"dialect"`
	URL     string `koanf:"url"`
}

// RunConfig holds execution defaults.
type RunConfig struct {
	FailFast        bool          `koanf:"fail_fast"`
	Materialization string        `koanf:"materialization"`
	ModelTimeout    time.Duration `koanf:"model_timeout"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectRetries  uint          `koanf:"connect_retries"`
	// Models are the selectors used when none are given on the command
	// line. Accepts a list or a comma-separated string.
	Models []string `koanf:"models"`
}

// RunOptions converts the configuration into engine options.
func (c *Config) RunOptions() core.RunOptions {
	return core.RunOptions{
		FailFast:        c.Run.FailFast,
		Materialization: core.Materialization(c.Run.Materialization),
		ModelTimeout:    c.Run.ModelTimeout,
		ConnectTimeout:  c.Run.ConnectTimeout,
		ConnectRetries:  c.Run.ConnectRetries,
		Target: core.Target{
			Dialect:          c.Target.Dialect,
			ConnectionString: c.Target.URL,
		},
	}
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	if c.ModelsDir == "" {
		return fmt.Errorf("models_dir must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	switch core.Materialization(c.Run.Materialization) {
	case core.MaterializeTable, core.MaterializeView:
	default:
		return fmt.Errorf("unknown materialization %q", c.Run.Materialization)
	}
	if c.Run.ModelTimeout <= 0 {
		return fmt.Errorf("run.model_timeout must be positive, got %s", c.Run.ModelTimeout)
	}
	if c.Run.ConnectTimeout < 0 {
		return fmt.Errorf("run.connect_timeout must not be negative, got %s", c.Run.ConnectTimeout)
	}
	switch c.Output {
	case OutputTable, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", c.Output, OutputTable, OutputJSON)
	}
	return nil
}
