// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/cadac/internal/testutil"
)

// Models is the project created by SetupTestProject: two staging models
// reading raw tables and a mart built on both.
var Models = map[string]string{
	"staging/stg_customers.sql": `-- Cleaned customers
SELECT
    id AS customer_id, -- surrogate key
    name AS customer_name
FROM raw.customers`,
	"staging/stg_orders.sql": `SELECT id AS order_id, customer_id, amount FROM raw.orders`,
	"marts/customer_revenue.sql": `-- Revenue per customer
SELECT c.customer_id, sum(o.amount) AS revenue
FROM staging.stg_customers c
JOIN staging.stg_orders o ON o.customer_id = c.customer_id
GROUP BY c.customer_id`,
}

// SetupTestProject creates a temporary project with a cadac.yaml and the
// Models tree below models/, and returns its directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteModels(t, filepath.Join(dir, "models"), Models)

	cfg := `models_dir: models
state_path: .cadac/state.db
target:
  url: postgres://etl@localhost:5432/analytics
`
	if err := os.WriteFile(filepath.Join(dir, "cadac.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to write cadac.yaml: %v", err)
	}
	return dir
}
