package engine

// materialize.go - Statement builders for the execution modes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/leapstack-labs/cadac/pkg/adapter"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// Materializer turns a model's SELECT into the statements that persist it.
// The statements run in one transaction.
type Materializer interface {
	Statements(a adapter.Adapter, m *core.ModelMetadata) []string
}

// TableMaterializer rebuilds the model as a table.
type TableMaterializer struct{}

// Statements implements Materializer.
func (TableMaterializer) Statements(a adapter.Adapter, m *core.ModelMetadata) []string {
	target := adapter.QuoteQualified(a, m.Identity.SchemaName, m.Identity.TableName)
	return []string{
		createSchema(a, m),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", target),
		fmt.Sprintf("CREATE TABLE %s AS\n%s", target, selectBody(m.SQL)),
	}
}

// ViewMaterializer replaces the model's view.
type ViewMaterializer struct{}

// Statements implements Materializer.
func (ViewMaterializer) Statements(a adapter.Adapter, m *core.ModelMetadata) []string {
	target := adapter.QuoteQualified(a, m.Identity.SchemaName, m.Identity.TableName)
	return []string{
		createSchema(a, m),
		fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", target, selectBody(m.SQL)),
	}
}

func createSchema(a adapter.Adapter, m *core.ModelMetadata) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", a.QuoteIdentifier(m.Identity.SchemaName))
}

// selectBody strips surrounding whitespace and trailing semicolons so the
// query can be embedded in a CREATE statement.
func selectBody(sql string) string {
	body := strings.TrimSpace(sql)
	for strings.HasSuffix(body, ";") {
		body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	}
	return body
}

// computeHash identifies a set of statements.
func computeHash(statements []string) string {
	h := sha256.Sum256([]byte(strings.Join(statements, ";\n")))
	return hex.EncodeToString(h[:8])
}
