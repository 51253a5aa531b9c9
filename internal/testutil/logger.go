// Package testutil provides test loggers and model fixtures.
package testutil

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/lmittmann/tint"
)

// NewTestLogger returns a debug logger that routes each record through
// t.Log, so output shows up only for failing tests or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(tint.NewHandler(tLogWriter{t}, &tint.Options{
		Level:      slog.LevelDebug,
		NoColor:    true,
		TimeFormat: "15:04:05.000",
	}))
}

type tLogWriter struct {
	t testing.TB
}

func (w tLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
