package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cadac/pkg/core"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "cadac.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("models-dir", "", "")
	flags.String("state", "", "")
	flags.String("target", "", "")
	flags.String("dialect", "", "")
	flags.Bool("fail-fast", true, "")
	flags.Duration("timeout", 0, "")
	flags.String("output", "", "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultModelsDir), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, "public", cfg.DefaultSchema)
	assert.Equal(t, OutputTable, cfg.Output)
	assert.Empty(t, cfg.ConfigFile)

	opts := cfg.RunOptions()
	defaults := core.DefaultRunOptions()
	assert.Equal(t, defaults.FailFast, opts.FailFast)
	assert.Equal(t, defaults.Materialization, opts.Materialization)
	assert.Equal(t, defaults.ModelTimeout, opts.ModelTimeout)
	assert.Equal(t, defaults.ConnectTimeout, opts.ConnectTimeout)
	assert.Equal(t, defaults.ConnectRetries, opts.ConnectRetries)
}

func TestLoad_FileSearchedUpward(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
models_dir: sql
target:
  dialect: postgres
  url: postgres://etl@db.internal/analytics
run:
  fail_fast: false
  materialization: view
  model_timeout: 90s
  models: client.*, finance.revenue
`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "cadac.yaml"), cfg.ConfigFile)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "sql"), cfg.ModelsDir)
	assert.Equal(t, "postgres", cfg.Target.Dialect)
	assert.False(t, cfg.Run.FailFast)
	assert.Equal(t, "view", cfg.Run.Materialization)
	assert.Equal(t, 90*time.Second, cfg.Run.ModelTimeout)
	assert.Equal(t, []string{"client.*", "finance.revenue"}, cfg.Run.Models)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfgFile := writeConfig(t, dir, `
target:
  url: postgres://file@db/analytics
run:
  model_timeout: 1m
output: table
`)
	t.Setenv("CADAC_TARGET__URL", "postgres://env@db/analytics")
	t.Setenv("CADAC_RUN__MODEL_TIMEOUT", "2m")
	t.Setenv("CADAC_OUTPUT", "json")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--timeout", "3m", "--fail-fast=false"}))

	cfg, err := Load(cfgFile, flags)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db/analytics", cfg.Target.URL, "env overrides file")
	assert.Equal(t, 3*time.Minute, cfg.Run.ModelTimeout, "flag overrides env")
	assert.False(t, cfg.Run.FailFast)
	assert.Equal(t, OutputJSON, cfg.Output)

	flags = testFlags()
	require.NoError(t, flags.Parse(nil))
	cfg, err = Load(cfgFile, flags)
	require.NoError(t, err)
	assert.True(t, cfg.Run.FailFast, "unset flags do not override")
	assert.Equal(t, 2*time.Minute, cfg.Run.ModelTimeout)
}

func TestLoad_FlagPathsRelativeToWorkingDir(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "models_dir: sql\n")
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--models-dir", "local", "--state", ":memory:"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, "local"), cfg.ModelsDir)
	assert.Equal(t, ":memory:", cfg.StatePath)
}

func TestLoad_ExpandsTargetURL(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "target:\n  url: postgres://etl:${CADAC_TEST_PASSWORD}@db/analytics?x=${CADAC_TEST_UNSET}\n")
	t.Setenv("CADAC_TEST_PASSWORD", "s3cret")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://etl:s3cret@db/analytics?x=${CADAC_TEST_UNSET}", cfg.Target.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"materialization", "run:\n  materialization: incremental\n", "unknown materialization"},
		{"output", "output: xml\n", "unknown output format"},
		{"duration", "run:\n  model_timeout: soon\n", "unable to decode config"},
		{"unbounded model timeout", "run:\n  model_timeout: 0s\n", "run.model_timeout must be positive"},
		{"negative connect timeout", "run:\n  connect_timeout: -1s\n", "run.connect_timeout must not be negative"},
		{"yaml", "models_dir: [unterminated\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			writeConfig(t, dir, tt.content)

			_, err := Load("", nil)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml", nil)
	assert.Error(t, err)
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "models_dir", flagKey("models-dir"))
	assert.Equal(t, "state_path", flagKey("state"))
	assert.Equal(t, "target.url", flagKey("target"))
	assert.Equal(t, "run.model_timeout", flagKey("timeout"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "models_dir", envKey("CADAC_MODELS_DIR"))
	assert.Equal(t, "run.fail_fast", envKey("CADAC_RUN__FAIL_FAST"))
}
