package core

import "time"

// ExecutionStatus is the outcome of one model in a run.
type ExecutionStatus string

// Execution statuses.
const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
)

// Materialization names an execution mode.
type Materialization string

// Built-in materializations.
const (
	MaterializeTable Materialization = "table"
	MaterializeView  Materialization = "view"
)

// Target is where a run executes. An empty Dialect is inferred from the
// connection string scheme.
type Target struct {
	Dialect          string
	ConnectionString string
}

// RunOptions control plan expansion and execution.
type RunOptions struct {
	IncludeUpstream   bool
	IncludeDownstream bool
	DryRun            bool
	FailFast          bool
	Target            Target
	Materialization   Materialization
	// ModelTimeout bounds each model execution. Zero means the default;
	// execution is never unbounded.
	ModelTimeout time.Duration
	// ConnectTimeout bounds connection setup. Zero disables the bound.
	ConnectTimeout time.Duration
	// ConnectRetries is how many extra connection attempts are made on
	// connectivity failures.
	ConnectRetries uint
}

// DefaultRunOptions returns the options used when nothing is configured.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		FailFast:        true,
		Materialization: MaterializeTable,
		ModelTimeout:    10 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		ConnectRetries:  3,
	}
}

// ExecutionResult is the outcome of one model.
type ExecutionResult struct {
	QualifiedName string
	Status        ExecutionStatus
	RowsAffected  int64
	Duration      time.Duration
	StartedAt     time.Time
	// SQLHash identifies the statements that were (or would have been) run.
	SQLHash string
	// Statements holds the materialized SQL.
	Statements []string
	// Err is set for failed models.
	Err error
	// Message explains skipped and failed results.
	Message string
}

// ErrorMessage returns the error text, or empty.
func (r ExecutionResult) ErrorMessage() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// RunReport collects the results of one run in execution order.
type RunReport struct {
	RunID     string
	Target    string
	DryRun    bool
	Results   []ExecutionResult
	Success   bool
	StartedAt time.Time
	Elapsed   time.Duration
}

// StatusCounts tallies results by status.
type StatusCounts struct {
	Success int
	Failed  int
	Skipped int
}

// Counts tallies the report's results.
func (r *RunReport) Counts() StatusCounts {
	var c StatusCounts
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			c.Success++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// Failures returns the failed results in execution order.
func (r *RunReport) Failures() []ExecutionResult {
	var out []ExecutionResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for a model.
func (r *RunReport) Result(qualifiedName string) (ExecutionResult, bool) {
	for _, res := range r.Results {
		if res.QualifiedName == qualifiedName {
			return res, true
		}
	}
	return ExecutionResult{}, false
}

// Order returns the qualified names in execution order.
func (r *RunReport) Order() []string {
	names := make([]string, len(r.Results))
	for i, res := range r.Results {
		names[i] = res.QualifiedName
	}
	return names
}
