package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cadac/internal/testutil"
	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		connStr string
		want    *Params
		dsn     string
		wantErr bool
	}{
		{
			name:    "in-memory",
			connStr: "duckdb://",
			want:    &Params{Settings: map[string]string{}},
			dsn:     "",
		},
		{
			name:    "explicit in-memory",
			connStr: "duckdb://:memory:",
			want:    &Params{Settings: map[string]string{}},
		},
		{
			name:    "absolute file",
			connStr: "duckdb:///var/lib/warehouse.duckdb",
			want:    &Params{Path: "/var/lib/warehouse.duckdb", Settings: map[string]string{}},
			dsn:     "/var/lib/warehouse.duckdb",
		},
		{
			name:    "settings and extensions",
			connStr: "duckdb://dev.duckdb?threads=4&extensions=httpfs,%20json&memory_limit=1GB",
			want: &Params{
				Path:       "dev.duckdb",
				Extensions: []string{"httpfs", "json"},
				Settings:   map[string]string{"threads": "4", "memory_limit": "1GB"},
			},
			dsn: "dev.duckdb?memory_limit=1GB&threads=4",
		},
		{name: "wrong scheme", connStr: "postgres://localhost/db", wantErr: true},
		{name: "empty", connStr: "", wantErr: true},
		{name: "bad extension", connStr: "duckdb://x.duckdb?extensions=httpfs;DROP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConnectionString(tt.connStr)
			if tt.wantErr {
				var invalid *core.InvalidConnectionStringError
				require.True(t, errors.As(err, &invalid), "got %v", err)
				assert.Equal(t, Dialect, invalid.Dialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.dsn != "" {
				assert.Equal(t, tt.dsn, got.DSN())
			}
		})
	}
}

func TestAdapter_Registered(t *testing.T) {
	a, err := adapter.DefaultRegistry.ForTarget(core.Target{ConnectionString: "duckdb://"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Dialect, a.Dialect())
	assert.Equal(t, `"main"."we""ird"`, adapter.QuoteQualified(a, "main", `we"ird`))
}

func connect(t *testing.T, connStr string) adapter.Connection {
	t.Helper()
	conn, err := New(testutil.NewTestLogger(t)).Connect(context.Background(), core.AdapterConfig{ConnectionString: connStr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnection_Execute(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	conn := connect(t, "duckdb://"+path)

	res, err := conn.Execute(ctx,
		`CREATE SCHEMA IF NOT EXISTS "staging"`,
		`DROP TABLE IF EXISTS "staging"."numbers"`,
		`CREATE TABLE "staging"."numbers" AS SELECT range AS n FROM range(5)`,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.RowsAffected)

	_, err = conn.Execute(ctx, `CREATE OR REPLACE VIEW "staging"."evens" AS SELECT n FROM "staging"."numbers" WHERE n % 2 = 0`)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestConnection_ExecuteErrors(t *testing.T) {
	ctx := context.Background()
	conn := connect(t, "duckdb://")

	tests := []struct {
		name string
		sql  string
		kind core.ErrorKind
	}{
		{"syntax", "SELEC 1", core.KindSyntax},
		{"undefined table", "CREATE TABLE t AS SELECT * FROM missing.table_name", core.KindUndefinedObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conn.Execute(ctx, tt.sql)
			var execErr *core.ExecutionError
			require.True(t, errors.As(err, &execErr), "got %v", err)
			assert.Equal(t, tt.kind, execErr.Kind)
		})
	}
}

func TestConnection_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rollback.duckdb")
	conn := connect(t, "duckdb://"+path)

	_, err := conn.Execute(ctx,
		`CREATE TABLE kept AS SELECT 1 AS id`,
		`SELEC broken`,
	)
	require.Error(t, err)
	require.NoError(t, conn.Close())

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = 'kept'`).Scan(&n))
	assert.Zero(t, n, "failed transaction left its table behind")
}
