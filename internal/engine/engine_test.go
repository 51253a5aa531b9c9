package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/internal/metrics"
	cadactest "github.com/leapstack-labs/cadac/internal/testutil"
	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

const fakeDialect = "fake"

// fakeAdapter records what the engine asks of it.
type fakeAdapter struct {
	t *testing.T

	forbidConnect bool
	connectErr    error
	// execute is called for every Execute; nil succeeds with one row.
	execute func(ctx context.Context, statements []string) (*core.ExecResult, error)

	mu       sync.Mutex
	connects int
	closes   int
	batches  [][]string
}

func (f *fakeAdapter) Dialect() string   { return fakeDialect }
func (f *fakeAdapter) Schemes() []string { return []string{"fake"} }

func (f *fakeAdapter) ValidateConnectionString(connStr string) error {
	_, err := adapter.ValidateURL(fakeDialect, connStr, "fake")
	return err
}

func (f *fakeAdapter) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (f *fakeAdapter) Connect(context.Context, core.AdapterConfig) (adapter.Connection, error) {
	if f.forbidConnect {
		f.t.Errorf("Connect must not be called")
	}
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeConnection{adapter: f}, nil
}

// executed returns the target of the last statement of each batch.
func (f *fakeAdapter) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.batches {
		last := batch[len(batch)-1]
		fields := strings.Fields(last)
		for i, field := range fields {
			if field == "AS" && i > 0 {
				out = append(out, fields[i-1])
				break
			}
		}
	}
	return out
}

type fakeConnection struct {
	adapter *fakeAdapter
}

func (c *fakeConnection) Execute(ctx context.Context, statements ...string) (*core.ExecResult, error) {
	c.adapter.mu.Lock()
	c.adapter.batches = append(c.adapter.batches, statements)
	c.adapter.mu.Unlock()
	if c.adapter.execute != nil {
		return c.adapter.execute(ctx, statements)
	}
	return &core.ExecResult{RowsAffected: 1}, nil
}

func (c *fakeConnection) Close() error {
	c.adapter.mu.Lock()
	defer c.adapter.mu.Unlock()
	c.adapter.closes++
	return nil
}

func failOn(target string, err error) func(context.Context, []string) (*core.ExecResult, error) {
	return func(_ context.Context, statements []string) (*core.ExecResult, error) {
		if strings.Contains(statements[len(statements)-1], target) {
			return nil, err
		}
		return &core.ExecResult{RowsAffected: 1}, nil
	}
}

type fakeRecorder struct {
	reports []*core.RunReport
}

func (r *fakeRecorder) SaveReport(_ context.Context, report *core.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func newEngine(t *testing.T, fa *fakeAdapter, cfg Config) *Engine {
	t.Helper()
	fa.t = t
	reg := adapter.NewRegistry()
	reg.Register(fakeDialect, func(*slog.Logger) adapter.Adapter { return fa })
	cfg.Adapters = reg
	cfg.Logger = cadactest.NewTestLogger(t)
	return New(cfg)
}

func loadCatalog(t *testing.T, files map[string]string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadFS(context.Background(), cadactest.ModelFS(files), "models", catalog.Options{
		DefaultSchema: catalog.DefaultSchema,
		Logger:        cadactest.NewTestLogger(t),
	})
	require.NoError(t, err)
	return cat
}

func options() core.RunOptions {
	opts := core.DefaultRunOptions()
	opts.Target = core.Target{Dialect: fakeDialect, ConnectionString: "fake://warehouse/analytics"}
	return opts
}

// chain is s.a <- s.b <- s.c plus an independent s.d.
var chain = map[string]string{
	"s/a.sql": "SELECT 1 AS id",
	"s/b.sql": "SELECT id FROM a",
	"s/c.sql": "SELECT id FROM s.b",
	"s/d.sql": "SELECT 2 AS id",
}

func statuses(report *core.RunReport) map[string]core.ExecutionStatus {
	out := make(map[string]core.ExecutionStatus, len(report.Results))
	for _, res := range report.Results {
		out[res.QualifiedName] = res.Status
	}
	return out
}

func TestRun_AllModels(t *testing.T) {
	fa := &fakeAdapter{}
	e := newEngine(t, fa, Config{})

	report, err := e.Run(context.Background(), loadCatalog(t, chain), nil, options())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, fakeDialect, report.Target)
	assert.Equal(t, []string{"s.a", "s.b", "s.c", "s.d"}, report.Order())
	assert.Equal(t, []string{`"s"."a"`, `"s"."b"`, `"s"."c"`, `"s"."d"`}, fa.executed())
	assert.Equal(t, 1, fa.connects, "connection is reused across models")
	assert.Equal(t, 1, fa.closes)

	res, ok := report.Result("s.b")
	require.True(t, ok)
	assert.Equal(t, core.StatusSuccess, res.Status)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Len(t, res.SQLHash, 16)
	assert.Equal(t, []string{
		`CREATE SCHEMA IF NOT EXISTS "s"`,
		`DROP TABLE IF EXISTS "s"."b"`,
		"CREATE TABLE \"s\".\"b\" AS\nSELECT id FROM a",
	}, res.Statements)
}

func TestRun_IncludeUpstream(t *testing.T) {
	files := map[string]string{
		"s/a.sql": "SELECT 1 AS id",
		"s/b.sql": "SELECT id FROM a",
	}

	t.Run("with upstream", func(t *testing.T) {
		fa := &fakeAdapter{}
		opts := options()
		opts.IncludeUpstream = true

		report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, files), []string{"s.b"}, opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"s.a", "s.b"}, report.Order())
		assert.Equal(t, []string{`"s"."a"`, `"s"."b"`}, fa.executed())
	})

	t.Run("without upstream", func(t *testing.T) {
		fa := &fakeAdapter{}
		report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, files), []string{"s.b"}, options())
		require.NoError(t, err)
		assert.Equal(t, []string{"s.b"}, report.Order())
	})
}

func TestRun_IncludeDownstream(t *testing.T) {
	fa := &fakeAdapter{}
	opts := options()
	opts.IncludeDownstream = true

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, chain), []string{"s.b"}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"s.b", "s.c"}, report.Order())
}

func TestRun_Selectors(t *testing.T) {
	files := map[string]string{
		"client/users.sql":  "SELECT 1 AS id",
		"client/orders.sql": "SELECT 1 AS id",
		"finance/fx.sql":    "SELECT 1 AS rate",
	}
	e := newEngine(t, &fakeAdapter{}, Config{})
	cat := loadCatalog(t, files)

	order, err := e.Plan(cat, []string{"client.*"}, options())
	require.NoError(t, err)
	assert.Equal(t, []string{"client.orders", "client.users"}, order)

	_, err = e.Run(context.Background(), cat, []string{"client.missing"}, options())
	var notFound *core.ModelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "client.missing", notFound.Name)

	_, err = e.Plan(cat, []string{"client.["}, options())
	assert.Error(t, err)
}

func TestRun_FailFast(t *testing.T) {
	fa := &fakeAdapter{execute: failOn(`"s"."a"`, &core.ExecutionError{Kind: core.KindSyntax, Err: errors.New("bad")})}
	opts := options()
	opts.IncludeUpstream = true

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, chain), []string{"s.b"}, opts)
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, []string{`"s"."a"`}, fa.executed(), "s.b must never be attempted")

	b, ok := report.Result("s.b")
	require.True(t, ok)
	assert.Equal(t, core.StatusSkipped, b.Status)
	assert.Contains(t, b.Message, "s.a")
	assert.Equal(t, 1, fa.closes)

	var execErr *core.ExecutionError
	require.True(t, errors.As(report.Failures()[0].Err, &execErr))
	assert.Equal(t, core.KindSyntax, execErr.Kind)
}

func TestRun_ContinueOnFailure(t *testing.T) {
	fa := &fakeAdapter{execute: failOn(`"s"."a"`, &core.ExecutionError{Kind: core.KindConstraint, Err: errors.New("duplicate key")})}
	opts := options()
	opts.FailFast = false

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, chain), nil, opts)
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, map[string]core.ExecutionStatus{
		"s.a": core.StatusFailed,
		"s.b": core.StatusSuccess,
		"s.c": core.StatusSuccess,
		"s.d": core.StatusSuccess,
	}, statuses(report))
	assert.Equal(t, core.StatusCounts{Success: 3, Failed: 1}, report.Counts())
}

func TestRun_DryRunNeverConnects(t *testing.T) {
	fa := &fakeAdapter{forbidConnect: true}
	opts := options()
	opts.DryRun = true

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, chain), nil, opts)
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.True(t, report.DryRun)
	assert.Equal(t, 0, fa.connects)
	for _, res := range report.Results {
		assert.Equal(t, core.StatusSkipped, res.Status, res.QualifiedName)
		assert.Equal(t, "dry run", res.Message)
		assert.NotEmpty(t, res.Statements)
		assert.Len(t, res.SQLHash, 16)
	}
}

func TestRun_Validation(t *testing.T) {
	cat := loadCatalog(t, chain)

	t.Run("unsupported dialect", func(t *testing.T) {
		fa := &fakeAdapter{forbidConnect: true}
		opts := options()
		opts.Target.Dialect = "oracle"

		report, err := newEngine(t, fa, Config{}).Run(context.Background(), cat, nil, opts)
		var unsupported *core.UnsupportedDialectError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "oracle", unsupported.Dialect)
		assert.Nil(t, report)
	})

	t.Run("dialect inferred from scheme", func(t *testing.T) {
		fa := &fakeAdapter{}
		opts := options()
		opts.Target.Dialect = ""

		report, err := newEngine(t, fa, Config{}).Run(context.Background(), cat, nil, opts)
		require.NoError(t, err)
		assert.Equal(t, fakeDialect, report.Target)
	})

	for _, dryRun := range []bool{false, true} {
		fa := &fakeAdapter{forbidConnect: true}
		opts := options()
		opts.DryRun = dryRun
		opts.Target.ConnectionString = "warehouse/analytics"

		_, err := newEngine(t, fa, Config{}).Run(context.Background(), cat, nil, opts)
		var invalid *core.InvalidConnectionStringError
		assert.True(t, errors.As(err, &invalid), "dry run %v", dryRun)
	}

	t.Run("unknown materialization", func(t *testing.T) {
		opts := options()
		opts.Materialization = "incremental"
		_, err := newEngine(t, &fakeAdapter{forbidConnect: true}, Config{}).Run(context.Background(), cat, nil, opts)
		assert.ErrorContains(t, err, "unknown materialization")
	})
}

func TestRun_ConnectionFailure(t *testing.T) {
	fa := &fakeAdapter{connectErr: &core.NotImplementedError{Dialect: fakeDialect, Op: "connect"}}
	opts := options()
	opts.FailFast = false

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, chain), nil, opts)
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, 1, fa.connects)
	assert.Equal(t, 0, fa.closes)
	assert.Equal(t, core.StatusCounts{Failed: 1, Skipped: 3}, report.Counts())

	first := report.Results[0]
	var connErr *core.ConnectionError
	require.True(t, errors.As(first.Err, &connErr))
	var notImpl *core.NotImplementedError
	assert.True(t, errors.As(first.Err, &notImpl))
}

func TestRun_FailedParseModel(t *testing.T) {
	files := map[string]string{
		"s/a.sql": "SELEC 1",
		"s/b.sql": "SELECT * FROM a",
		"s/c.sql": "SELECT 1 AS id",
	}
	fa := &fakeAdapter{}

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, files), nil, options())
	require.NoError(t, err)

	assert.Equal(t, []string{"s.a", "s.b", "s.c"}, report.Order())
	a, _ := report.Result("s.a")
	assert.Equal(t, core.StatusFailed, a.Status)
	var parseErr *core.ParseError
	assert.True(t, errors.As(a.Err, &parseErr))
	assert.Empty(t, fa.executed(), "nothing runs after the failed model under fail fast")
	assert.Equal(t, 0, fa.connects)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlightErr error
	fa := &fakeAdapter{execute: func(execCtx context.Context, statements []string) (*core.ExecResult, error) {
		cancel()
		inFlightErr = execCtx.Err()
		return &core.ExecResult{RowsAffected: 1}, nil
	}}

	report, err := newEngine(t, fa, Config{}).Run(ctx, loadCatalog(t, chain), nil, options())
	require.NoError(t, err)

	assert.NoError(t, inFlightErr, "in-flight model must not see the cancellation")
	assert.False(t, report.Success)
	assert.Equal(t, []string{`"s"."a"`}, fa.executed())
	assert.Equal(t, core.StatusSuccess, report.Results[0].Status)
	for _, res := range report.Results[1:] {
		assert.Equal(t, core.StatusSkipped, res.Status)
		assert.Equal(t, "cancelled", res.Message)
	}
	assert.Equal(t, 1, fa.closes)
}

func TestRun_ModelTimeout(t *testing.T) {
	fa := &fakeAdapter{execute: func(ctx context.Context, _ []string) (*core.ExecResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	opts := options()
	opts.ModelTimeout = 20 * time.Millisecond

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, map[string]string{"s/a.sql": "SELECT 1"}), nil, opts)
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, core.StatusFailed, res.Status)

	var execErr *core.ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
	assert.Equal(t, core.KindTimeout, execErr.Kind)

	var timeoutErr *core.TimeoutError
	require.True(t, errors.As(res.Err, &timeoutErr))
	assert.Equal(t, 20*time.Millisecond, timeoutErr.After)
}

func TestRun_ZeroModelTimeoutStillBounded(t *testing.T) {
	var deadline time.Time
	fa := &fakeAdapter{execute: func(ctx context.Context, _ []string) (*core.ExecResult, error) {
		var ok bool
		deadline, ok = ctx.Deadline()
		assert.True(t, ok, "execution context has no deadline")
		return &core.ExecResult{RowsAffected: 1}, nil
	}}
	opts := options()
	opts.ModelTimeout = 0

	start := time.Now()
	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, map[string]string{"s/a.sql": "SELECT 1"}), nil, opts)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.WithinDuration(t, start.Add(core.DefaultRunOptions().ModelTimeout), deadline, time.Minute)
}

func TestRun_AdapterTimeoutGetsLimit(t *testing.T) {
	fa := &fakeAdapter{execute: func(context.Context, []string) (*core.ExecResult, error) {
		return nil, &core.ExecutionError{Kind: core.KindTimeout, Code: "57014", Err: &core.TimeoutError{Op: "execute"}}
	}}
	opts := options()
	opts.ModelTimeout = time.Minute

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, map[string]string{"s/a.sql": "SELECT 1"}), nil, opts)
	require.NoError(t, err)

	var timeoutErr *core.TimeoutError
	require.True(t, errors.As(report.Results[0].Err, &timeoutErr))
	assert.Equal(t, time.Minute, timeoutErr.After)
}

func TestRun_TimingMetricsAndRecorder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fa := &fakeAdapter{execute: func(context.Context, []string) (*core.ExecResult, error) {
		clock.Advance(2 * time.Second)
		return &core.ExecResult{RowsAffected: 10}, nil
	}}
	m := metrics.New(nil)
	rec := &fakeRecorder{}

	e := newEngine(t, fa, Config{Clock: clock, Metrics: m, Recorder: rec})
	report, err := e.Run(context.Background(), loadCatalog(t, chain), nil, options())
	require.NoError(t, err)

	for _, res := range report.Results {
		assert.Equal(t, 2*time.Second, res.Duration)
	}
	assert.Equal(t, 8*time.Second, report.Elapsed)

	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ModelResults.WithLabelValues("success")))
}

func TestRun_ViewMaterialization(t *testing.T) {
	fa := &fakeAdapter{}
	opts := options()
	opts.Materialization = core.MaterializeView

	report, err := newEngine(t, fa, Config{}).Run(context.Background(), loadCatalog(t, map[string]string{"s/a.sql": "SELECT 1 AS id;\n"}), nil, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE SCHEMA IF NOT EXISTS "s"`,
		"CREATE OR REPLACE VIEW \"s\".\"a\" AS\nSELECT 1 AS id",
	}, report.Results[0].Statements)
}

func TestComputeHash(t *testing.T) {
	a := computeHash([]string{"SELECT 1"})
	assert.Len(t, a, 16)
	assert.Equal(t, a, computeHash([]string{"SELECT 1"}))
	assert.NotEqual(t, a, computeHash([]string{"SELECT 2"}))
}

func TestMaterializations(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, []string{"table", "view"}, e.Materializations())
}
