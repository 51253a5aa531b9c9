package config

import "github.com/leapstack-labs/cadac/pkg/core"

// Default configuration values.
const (
	DefaultModelsDir = "models"
	DefaultStateFile = ".cadac/state.db"
	DefaultLogLevel  = "info"

	OutputTable = "table"
	OutputJSON  = "json"
)

// configNames are the file names searched for, in order.
var configNames = []string{"cadac.yaml", "cadac.yml"}

func defaults() map[string]any {
	run := core.DefaultRunOptions()
	return map[string]any{
		"models_dir":          DefaultModelsDir,
		"default_schema":      "public",
		"workers":             0,
		"state_path":          DefaultStateFile,
		"metrics_file":        "",
		"log_level":           DefaultLogLevel,
		"output":              OutputTable,
		"target.dialect":      "",
		"target.url":          "",
		"run.fail_fast":       run.FailFast,
		"run.materialization": string(run.Materialization),
		"run.model_timeout":   run.ModelTimeout.String(),
		"run.connect_timeout": run.ConnectTimeout.String(),
		"run.connect_retries": run.ConnectRetries,
	}
}

// flagKeys maps flag names to configuration keys where the two differ.
var flagKeys = map[string]string{
	"state":           "state_path",
	"target":          "target.url",
	"dialect":         "target.dialect",
	"fail-fast":       "run.fail_fast",
	"materialization": "run.materialization",
	"timeout":         "run.model_timeout",
	"connect-timeout": "run.connect_timeout",
	"retries":         "run.connect_retries",
}
