package engine

// run.go - Execution orchestration for running models

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Run executes the selected models in dependency order on a single worker.
//
// Errors that prevent any model from being attempted are returned: an
// unmatched selector, an unknown materialization or dialect, and a
// malformed connection string. Failures of individual models, including a
// failed connection, are reported in the RunReport and leave the error nil.
//
// Cancelling ctx stops new models from starting. A model already executing
// runs to completion or rollback under its own timeout.
func (e *Engine) Run(ctx context.Context, cat *catalog.Catalog, selectors []string, opts core.RunOptions) (*core.RunReport, error) {
	order, err := e.Plan(cat, selectors, opts)
	if err != nil {
		return nil, err
	}

	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = core.DefaultRunOptions().ModelTimeout
	}
	if opts.Materialization == "" {
		opts.Materialization = core.MaterializeTable
	}
	mat, ok := e.materializers[opts.Materialization]
	if !ok {
		return nil, fmt.Errorf("unknown materialization %q (available: %v)", opts.Materialization, e.Materializations())
	}

	a, err := e.adapters.ForTarget(opts.Target, e.logger)
	if err != nil {
		return nil, err
	}
	if err := a.ValidateConnectionString(opts.Target.ConnectionString); err != nil {
		return nil, err
	}

	r := &runner{
		engine:  e,
		catalog: cat,
		adapter: a,
		mat:     mat,
		opts:    opts,
		report: &core.RunReport{
			RunID:     uuid.NewString(),
			Target:    a.Dialect(),
			DryRun:    opts.DryRun,
			StartedAt: e.clock.Now(),
		},
	}

	e.logger.Info("starting run",
		"run_id", r.report.RunID,
		"dialect", a.Dialect(),
		"models", len(order),
		"dry_run", opts.DryRun,
		"fail_fast", opts.FailFast,
	)

	r.execute(ctx, order)
	if err := r.close(); err != nil {
		e.logger.Warn("failed to close connection", "run_id", r.report.RunID, "error", err)
	}

	report := r.report
	report.Elapsed = e.clock.Since(report.StartedAt)
	report.Success = report.Counts().Failed == 0 && !r.stopped

	counts := report.Counts()
	e.logger.Info("run finished",
		"run_id", report.RunID,
		"success", report.Success,
		"succeeded", counts.Success,
		"failed", counts.Failed,
		"skipped", counts.Skipped,
		"elapsed", report.Elapsed,
	)

	e.metrics.ObserveReport(report)
	if e.recorder != nil {
		if err := e.recorder.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			e.logger.Warn("failed to record run", "run_id", report.RunID, "error", err)
		}
	}
	return report, nil
}

// runner carries the state of one run.
type runner struct {
	engine  *Engine
	catalog *catalog.Catalog
	adapter adapter.Adapter
	mat     Materializer
	opts    core.RunOptions
	report  *core.RunReport

	conn    adapter.Connection
	stopped bool
}

func (r *runner) execute(ctx context.Context, order []string) {
	for i, name := range order {
		if ctx.Err() != nil {
			r.stopped = true
			r.skipRemaining(order[i:], "cancelled")
			return
		}

		res := r.runModel(ctx, name)
		r.report.Results = append(r.report.Results, res)
		if res.Status != core.StatusFailed {
			continue
		}

		var connErr *core.ConnectionError
		switch {
		case errors.As(res.Err, &connErr):
			r.skipRemaining(order[i+1:], "skipped: no connection to "+r.adapter.Dialect())
			return
		case r.opts.FailFast:
			r.skipRemaining(order[i+1:], fmt.Sprintf("skipped: model %s failed", name))
			return
		}
	}
}

func (r *runner) runModel(ctx context.Context, name string) core.ExecutionResult {
	logger := r.engine.logger.With("run_id", r.report.RunID, "model", name)
	res := core.ExecutionResult{
		QualifiedName: name,
		StartedAt:     r.engine.clock.Now(),
	}

	m, ok := r.catalog.Get(name)
	if !ok {
		res.Status = core.StatusFailed
		res.Message = "model failed to load"
		if f, ok := r.catalog.Failure(name); ok {
			res.Err = f.Err
		} else {
			res.Err = &core.ModelNotFoundError{Name: name}
		}
		logger.Error("model not executable", "error", res.Err)
		return res
	}

	res.Statements = r.mat.Statements(r.adapter, m)
	res.SQLHash = computeHash(res.Statements)

	if r.opts.DryRun {
		res.Status = core.StatusSkipped
		res.Message = "dry run"
		logger.Debug("planned model", "sql_hash", res.SQLHash)
		return res
	}

	conn, err := r.connection(ctx)
	if err != nil {
		res.Status = core.StatusFailed
		res.Err = err
		res.Duration = r.engine.clock.Since(res.StartedAt)
		logger.Error("connection failed", "error", err)
		return res
	}

	logger.Debug("executing model", "materialization", r.opts.Materialization, "sql_hash", res.SQLHash)

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ModelTimeout)
	out, err := conn.Execute(execCtx, res.Statements...)
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()
	res.Duration = r.engine.clock.Since(res.StartedAt)

	if err != nil {
		res.Status = core.StatusFailed
		res.Err = r.timeout(err, timedOut)
		logger.Error("model failed", "error", res.Err, "duration", res.Duration)
		return res
	}

	res.Status = core.StatusSuccess
	if out != nil {
		res.RowsAffected = out.RowsAffected
	}
	logger.Info("model executed", "rows", res.RowsAffected, "duration", res.Duration)
	return res
}

// timeout makes sure an execution that ran past ModelTimeout surfaces as a
// TimeoutError carrying the limit.
func (r *runner) timeout(err error, timedOut bool) error {
	var timeoutErr *core.TimeoutError
	if errors.As(err, &timeoutErr) {
		if timeoutErr.After == 0 {
			timeoutErr.After = r.opts.ModelTimeout
		}
		return err
	}
	if !timedOut {
		return err
	}
	return &core.ExecutionError{
		Kind: core.KindTimeout,
		Err:  &core.TimeoutError{Op: "execute", After: r.opts.ModelTimeout, Err: err},
	}
}

// connection connects on first use and reuses the connection afterwards.
func (r *runner) connection(ctx context.Context) (adapter.Connection, error) {
	if r.conn != nil {
		return r.conn, nil
	}

	r.engine.logger.Debug("connecting", "dialect", r.adapter.Dialect())
	conn, err := r.adapter.Connect(ctx, core.AdapterConfig{
		Dialect:          r.adapter.Dialect(),
		ConnectionString: r.opts.Target.ConnectionString,
		ConnectTimeout:   r.opts.ConnectTimeout,
		MaxRetries:       r.opts.ConnectRetries,
	})
	if err != nil {
		var connErr *core.ConnectionError
		if !errors.As(err, &connErr) {
			err = &core.ConnectionError{Dialect: r.adapter.Dialect(), Err: err}
		}
		return nil, err
	}
	r.conn = conn
	return conn, nil
}

func (r *runner) close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

func (r *runner) skipRemaining(names []string, message string) {
	for _, name := range names {
		r.report.Results = append(r.report.Results, core.ExecutionResult{
			QualifiedName: name,
			Status:        core.StatusSkipped,
			Message:       message,
		})
	}
}
