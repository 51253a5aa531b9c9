package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// timeLayout sorts lexicographically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunRecord is a stored run.
type RunRecord struct {
	ID        string
	Target    string
	DryRun    bool
	Success   bool
	StartedAt time.Time
	Elapsed   time.Duration
	Counts    core.StatusCounts
	// Models is only filled by GetRun.
	Models []ModelRunRecord
}

// ModelRunRecord is one stored model result.
type ModelRunRecord struct {
	QualifiedName string
	Status        core.ExecutionStatus
	RowsAffected  int64
	Duration      time.Duration
	SQLHash       string
	Error         string
	Message       string
}

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// SaveReport stores a finished run and its model results.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *core.RunReport) (err error) {
	if s.db == nil {
		return errNotOpen
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, target, dry_run, success, started_at, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Target, report.DryRun, report.Success,
		report.StartedAt.UTC().Format(timeLayout), report.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO model_runs (run_id, position, qualified_name, status, rows_affected, duration_ms, sql_hash, error, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare model run insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, res := range report.Results {
		_, err = stmt.ExecContext(ctx,
			report.RunID, i, res.QualifiedName, string(res.Status), res.RowsAffected,
			res.Duration.Milliseconds(), res.SQLHash, res.ErrorMessage(), res.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert model run %s: %w", res.QualifiedName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug("saved run", "run_id", report.RunID, "models", len(report.Results))
	return nil
}

// GetRun returns a stored run with its model results in execution order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	row := s.db.QueryRowContext(ctx, runSelect+` WHERE r.id = ? GROUP BY r.id`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT qualified_name, status, rows_affected, duration_ms, sql_hash, error, message
		 FROM model_runs WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get model runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			m          ModelRunRecord
			status     string
			durationMS int64
		)
		if err := rows.Scan(&m.QualifiedName, &status, &m.RowsAffected, &durationMS, &m.SQLHash, &m.Error, &m.Message); err != nil {
			return nil, fmt.Errorf("failed to scan model run: %w", err)
		}
		m.Status = core.ExecutionStatus(status)
		m.Duration = time.Duration(durationMS) * time.Millisecond
		run.Models = append(run.Models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model runs: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, runSelect+` GROUP BY r.id ORDER BY r.started_at DESC, r.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const runSelect = `SELECT r.id, r.target, r.dry_run, r.success, r.started_at, r.elapsed_ms,
	COALESCE(SUM(m.status = 'success'), 0),
	COALESCE(SUM(m.status = 'failed'), 0),
	COALESCE(SUM(m.status = 'skipped'), 0)
	FROM runs r LEFT JOIN model_runs m ON m.run_id = r.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run       RunRecord
		startedAt string
		elapsedMS int64
	)
	if err := row.Scan(&run.ID, &run.Target, &run.DryRun, &run.Success, &startedAt, &elapsedMS,
		&run.Counts.Success, &run.Counts.Failed, &run.Counts.Skipped); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	run.StartedAt = t
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &run, nil
}
