package core

import "time"

// AdapterConfig holds what an adapter needs to open a connection.
type AdapterConfig struct {
	Dialect          string
	ConnectionString string
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
	// MaxRetries is the number of extra attempts on connectivity failures.
	MaxRetries uint
}

// ExecResult is what a connection reports for a committed transaction.
type ExecResult struct {
	// RowsAffected is reported by the last statement.
	RowsAffected int64
}
