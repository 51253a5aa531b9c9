package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/internal/config"
	"github.com/leapstack-labs/cadac/internal/engine"
	"github.com/leapstack-labs/cadac/internal/metrics"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// RunOptions holds options for the run command that are not part of the
// configuration.
type RunOptions struct {
	Upstream   bool
	Downstream bool
	DryRun     bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [model...]",
		Short: "Run all models or specific models",
		Long: `Execute SQL models in dependency order against the target database.

Arguments select models by qualified name or glob pattern (client.*).
Without arguments, run.models from the configuration is used, and without
that every model runs.`,
		Example: `  # Run all models
  cadac run

  # Run the staging schema and everything built on it
  cadac run 'staging.*' --downstream

  # Show what would run, without connecting
  cadac run --dry-run

  # Keep going after a failure
  cadac run --fail-fast=false --target postgres://etl@db:5432/analytics`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	def := core.DefaultRunOptions()
	cmd.Flags().BoolVar(&opts.Upstream, "upstream", false, "Include the models the selection depends on")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include the models depending on the selection")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan and render SQL without connecting")
	cmd.Flags().Bool("fail-fast", def.FailFast, "Stop at the first failed model")
	cmd.Flags().String("target", "", "Target connection URL")
	cmd.Flags().String("dialect", "", "Target dialect (inferred from the URL scheme by default)")
	cmd.Flags().String("materialization", string(def.Materialization), "Materialization: table or view")
	cmd.Flags().Duration("timeout", def.ModelTimeout, "Per-model execution timeout")
	cmd.Flags().Duration("connect-timeout", def.ConnectTimeout, "Connection timeout")
	cmd.Flags().Uint("retries", def.ConnectRetries, "Connection retries on connectivity errors")

	_ = cmd.RegisterFlagCompletionFunc("materialization", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(core.MaterializeTable), string(core.MaterializeView)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Cfg
	ctx := cmd.Context()

	cat, err := cmdCtx.LoadCatalog(ctx)
	if err != nil {
		return err
	}

	selectors := args
	if len(selectors) == 0 {
		selectors = cfg.Run.Models
	}

	runOpts := cfg.RunOptions()
	runOpts.IncludeUpstream = opts.Upstream
	runOpts.IncludeDownstream = opts.Downstream
	runOpts.DryRun = opts.DryRun

	m := metrics.New(nil)
	engCfg := engine.Config{Logger: cmdCtx.Logger, Metrics: m}

	store, err := cmdCtx.OpenStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		engCfg.Recorder = store
	}

	report, err := engine.New(engCfg).Run(ctx, cat, selectors, runOpts)
	if err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			cmdCtx.Logger.Warn("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if cfg.Output == config.OutputJSON {
		if err := writeJSON(out, reportJSON(report)); err != nil {
			return err
		}
	} else {
		renderReport(out, report)
	}

	if !report.Success {
		counts := report.Counts()
		return fmt.Errorf("run %s failed: %d failed, %d skipped", report.RunID, counts.Failed, counts.Skipped)
	}
	return nil
}

type resultJSON struct {
	Model        string   `json:"model"`
	Status       string   `json:"status"`
	RowsAffected int64    `json:"rows_affected"`
	DurationMS   int64    `json:"duration_ms"`
	SQLHash      string   `json:"sql_hash,omitempty"`
	Error        string   `json:"error,omitempty"`
	Message      string   `json:"message,omitempty"`
	Statements   []string `json:"statements,omitempty"`
}

type runJSON struct {
	RunID     string       `json:"run_id"`
	Target    string       `json:"target"`
	DryRun    bool         `json:"dry_run"`
	Success   bool         `json:"success"`
	StartedAt time.Time    `json:"started_at"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Results   []resultJSON `json:"results"`
}

func reportJSON(report *core.RunReport) runJSON {
	counts := report.Counts()
	out := runJSON{
		RunID:     report.RunID,
		Target:    report.Target,
		DryRun:    report.DryRun,
		Success:   report.Success,
		StartedAt: report.StartedAt,
		ElapsedMS: report.Elapsed.Milliseconds(),
		Succeeded: counts.Success,
		Failed:    counts.Failed,
		Skipped:   counts.Skipped,
		Results:   make([]resultJSON, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		r := resultJSON{
			Model:        res.QualifiedName,
			Status:       string(res.Status),
			RowsAffected: res.RowsAffected,
			DurationMS:   res.Duration.Milliseconds(),
			SQLHash:      res.SQLHash,
			Error:        res.ErrorMessage(),
			Message:      res.Message,
		}
		if report.DryRun {
			r.Statements = res.Statements
		}
		out.Results = append(out.Results, r)
	}
	return out
}

var statusColors = map[core.ExecutionStatus]text.Colors{
	core.StatusSuccess: {text.FgGreen},
	core.StatusFailed:  {text.FgRed},
	core.StatusSkipped: {text.FgYellow},
}

func renderReport(w io.Writer, report *core.RunReport) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Run %s on %s", report.RunID, report.Target))
	t.AppendHeader(table.Row{"#", "Model", "Status", "Rows", "Duration", "Hash", "Detail"})
	for i, res := range report.Results {
		detail := res.ErrorMessage()
		if detail == "" {
			detail = res.Message
		}
		t.AppendRow(table.Row{
			i + 1,
			res.QualifiedName,
			statusColors[res.Status].Sprint(string(res.Status)),
			res.RowsAffected,
			formatDuration(res.Duration),
			res.SQLHash,
			detail,
		})
	}
	counts := report.Counts()
	t.AppendFooter(table.Row{
		"", "",
		fmt.Sprintf("%d ok / %d failed / %d skipped", counts.Success, counts.Failed, counts.Skipped),
		"", formatDuration(report.Elapsed), "", "",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60},
	})
	t.Render()

	if report.DryRun {
		for _, res := range report.Results {
			_, _ = fmt.Fprintf(w, "\n-- %s (%s)\n", res.QualifiedName, res.SQLHash)
			for _, stmt := range res.Statements {
				_, _ = fmt.Fprintf(w, "%s;\n", stmt)
			}
		}
	}
}
