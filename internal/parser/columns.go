package parser

import (
	"fmt"
	"sort"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// topLevelSelect returns the arm whose select list names the result
// columns. For set operations that is the left-most arm.
func topLevelSelect(stmt *pg_query.SelectStmt) *pg_query.SelectStmt {
	for len(stmt.GetTargetList()) == 0 && stmt.GetLarg() != nil {
		stmt = stmt.GetLarg()
	}
	return stmt
}

func selectColumns(stmt *pg_query.SelectStmt, refs *referenceSet) []core.ColumnMetadata {
	sel := topLevelSelect(stmt)

	if len(sel.GetTargetList()) == 0 {
		// VALUES lists name their columns column1, column2, ...
		if rows := sel.GetValuesLists(); len(rows) > 0 {
			n := len(rows[0].GetList().GetItems())
			cols := make([]core.ColumnMetadata, n)
			for i := range cols {
				cols[i] = core.ColumnMetadata{Name: fmt.Sprintf("column%d", i+1), Position: i + 1}
			}
			return cols
		}
		return nil
	}

	relations := fromRelations(sel.GetFromClause())

	cols := make([]core.ColumnMetadata, 0, len(sel.GetTargetList()))
	for i, item := range sel.GetTargetList() {
		target := item.GetResTarget()
		if target == nil {
			continue
		}
		cols = append(cols, core.ColumnMetadata{
			Name:     expressionName(target.GetVal()),
			Alias:    target.GetName(),
			Position: i + 1,
			Sources:  columnSources(target.GetVal(), refs, relations),
		})
	}
	return cols
}

// expressionName derives a column name the way PostgreSQL labels
// unaliased select items.
func expressionName(n *pg_query.Node) string {
	switch {
	case n.GetColumnRef() != nil:
		fields := stringFields(n.GetColumnRef().GetFields())
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	case n.GetFuncCall() != nil:
		fields := stringFields(n.GetFuncCall().GetFuncname())
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	case n.GetTypeCast() != nil:
		if name := expressionName(n.GetTypeCast().GetArg()); name != "?column?" {
			return name
		}
		fields := stringFields(n.GetTypeCast().GetTypeName().GetNames())
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	case n.GetCaseExpr() != nil:
		return "case"
	case n.GetCoalesceExpr() != nil:
		return "coalesce"
	case n.GetMinMaxExpr() != nil:
		if n.GetMinMaxExpr().GetOp() == pg_query.MinMaxOp_IS_GREATEST {
			return "greatest"
		}
		return "least"
	case n.GetAArrayExpr() != nil:
		return "array"
	}
	return "?column?"
}

// columnSources lists the relations a select item reads from. Qualified
// column references go through the alias bindings; unqualified ones are
// attributed to the only relation in FROM when there is exactly one.
func columnSources(val *pg_query.Node, refs *referenceSet, relations []string) []string {
	if val == nil {
		return nil
	}

	seen := make(map[string]bool)
	var sources []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			sources = append(sources, s)
		}
	}

	walk(val.ProtoReflect(), func(m proto.Message) bool {
		switch n := m.(type) {
		case *pg_query.SubLink:
			// Subqueries have their own FROM scope.
			return false
		case *pg_query.ColumnRef:
			fields := stringFields(n.GetFields())
			if q := qualifierOf(fields); q != "" {
				add(refs.resolveQualifier(q))
				return false
			}
			if len(fields) == 1 && fields[0] == "*" {
				for _, r := range relations {
					add(r)
				}
			} else if len(relations) == 1 {
				add(relations[0])
			}
			return false
		}
		return true
	})

	sort.Strings(sources)
	return sources
}
