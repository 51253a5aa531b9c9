package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/internal/config"
	"github.com/leapstack-labs/cadac/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous runs",
		Long: `List recorded runs, newest first, or show the model results of one run.

Runs are recorded in the state database (state_path).`,
		Example: `  # Last 20 runs
  cadac history

  # Results of one run
  cadac history 0b6f2c4e-5d0a-4a43-9a3e-2f1f7e3c9d11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cmdCtx.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("run history is disabled: state_path is empty")
			}
			defer func() { _ = store.Close() }()

			jsonOut := cmdCtx.Cfg.Output == config.OutputJSON
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, runRecordJSON(run))
				}
				renderRun(out, run)
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				items := make([]historyRunJSON, 0, len(runs))
				for _, run := range runs {
					items = append(items, runRecordJSON(run))
				}
				return writeJSON(out, items)
			}
			renderRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}

type historyModelJSON struct {
	Model        string `json:"model"`
	Status       string `json:"status"`
	RowsAffected int64  `json:"rows_affected"`
	DurationMS   int64  `json:"duration_ms"`
	SQLHash      string `json:"sql_hash,omitempty"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

type historyRunJSON struct {
	RunID     string             `json:"run_id"`
	Target    string             `json:"target"`
	DryRun    bool               `json:"dry_run"`
	Success   bool               `json:"success"`
	StartedAt time.Time          `json:"started_at"`
	ElapsedMS int64              `json:"elapsed_ms"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Models    []historyModelJSON `json:"models,omitempty"`
}

func runRecordJSON(run *state.RunRecord) historyRunJSON {
	out := historyRunJSON{
		RunID:     run.ID,
		Target:    run.Target,
		DryRun:    run.DryRun,
		Success:   run.Success,
		StartedAt: run.StartedAt,
		ElapsedMS: run.Elapsed.Milliseconds(),
		Succeeded: run.Counts.Success,
		Failed:    run.Counts.Failed,
		Skipped:   run.Counts.Skipped,
	}
	for _, m := range run.Models {
		out.Models = append(out.Models, historyModelJSON{
			Model:        m.QualifiedName,
			Status:       string(m.Status),
			RowsAffected: m.RowsAffected,
			DurationMS:   m.Duration.Milliseconds(),
			SQLHash:      m.SQLHash,
			Error:        m.Error,
			Message:      m.Message,
		})
	}
	return out
}

func outcome(run *state.RunRecord) string {
	switch {
	case run.DryRun:
		return "dry run"
	case run.Success:
		return "success"
	default:
		return "failed"
	}
}

func renderRuns(w io.Writer, runs []*state.RunRecord) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Started", "Target", "Outcome", "OK", "Failed", "Skipped", "Elapsed"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Target,
			outcome(run),
			run.Counts.Success,
			run.Counts.Failed,
			run.Counts.Skipped,
			formatDuration(run.Elapsed),
		})
	}
	t.Render()
}

func renderRun(w io.Writer, run *state.RunRecord) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Run %s on %s, %s (%s)",
		run.ID, run.Target, outcome(run), run.StartedAt.Local().Format(time.DateTime)))
	t.AppendHeader(table.Row{"#", "Model", "Status", "Rows", "Duration", "Hash", "Detail"})
	for i, m := range run.Models {
		detail := m.Error
		if detail == "" {
			detail = m.Message
		}
		t.AppendRow(table.Row{
			i + 1,
			m.QualifiedName,
			statusColors[m.Status].Sprint(string(m.Status)),
			m.RowsAffected,
			formatDuration(m.Duration),
			m.SQLHash,
			detail,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", formatDuration(run.Elapsed), "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60},
	})
	t.Render()
}
