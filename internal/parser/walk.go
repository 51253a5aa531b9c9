package parser

import (
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// walk visits every message below m depth first, in field declaration
// order. Returning false from visit skips the message's children.
func walk(m protoreflect.Message, visit func(proto.Message) bool) {
	if !m.IsValid() {
		return
	}
	if !visit(m.Interface()) {
		return
	}
	eachChild(m, "", func(child protoreflect.Message) { walk(child, visit) })
}

// eachChild calls fn for every message held by m's fields, in declaration
// order, leaving out the field named skip.
func eachChild(m protoreflect.Message, skip protoreflect.Name, fn func(protoreflect.Message)) {
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() != protoreflect.MessageKind || fd.IsMap() || fd.Name() == skip || !m.Has(fd) {
			continue
		}
		if fd.IsList() {
			list := m.Get(fd).List()
			for j := 0; j < list.Len(); j++ {
				fn(list.Get(j).Message())
			}
			continue
		}
		fn(m.Get(fd).Message())
	}
}

type rangeRef struct {
	ref      core.RawReference
	location int
}

// referenceSet is the result of one traversal of a statement.
type referenceSet struct {
	refs    []rangeRef
	aliases map[string]string
}

// collectReferences walks the statement once, gathering relation
// references and alias bindings. Unqualified names that resolve to a
// common table expression in scope are not references.
func collectReferences(stmt *pg_query.SelectStmt) *referenceSet {
	set := &referenceSet{aliases: make(map[string]string)}
	set.collect(stmt.ProtoReflect(), nil)
	return set
}

func (s *referenceSet) collect(m protoreflect.Message, ctes map[string]bool) {
	walk(m, func(msg proto.Message) bool {
		switch n := msg.(type) {
		case *pg_query.IntoClause, *pg_query.LockingClause:
			// SELECT INTO targets and FOR UPDATE OF names are not sources.
			return false
		case *pg_query.SelectStmt:
			if n.GetWithClause() == nil {
				return true
			}
			s.collectWith(n, ctes)
			return false
		case *pg_query.RangeVar:
			ref := core.RawReference{
				Database: n.GetCatalogname(),
				Schema:   n.GetSchemaname(),
				Table:    n.GetRelname(),
			}
			if alias := n.GetAlias().GetAliasname(); alias != "" {
				s.aliases[alias] = ref.String()
			}
			if ref.Parts() == 1 && ctes[ref.Table] {
				return true
			}
			s.refs = append(s.refs, rangeRef{ref: ref, location: int(n.GetLocation())})
		}
		return true
	})
}

// collectWith walks a statement that carries a WITH clause. Each CTE body
// sees the CTEs listed before it, and its own name only under RECURSIVE,
// where every name of the clause is visible. The statement body sees them all.
func (s *referenceSet) collectWith(stmt *pg_query.SelectStmt, outer map[string]bool) {
	with := stmt.GetWithClause()

	scope := make(map[string]bool, len(outer)+len(with.GetCtes()))
	for name := range outer {
		scope[name] = true
	}
	if with.GetRecursive() {
		for _, node := range with.GetCtes() {
			scope[node.GetCommonTableExpr().GetCtename()] = true
		}
	}

	for _, node := range with.GetCtes() {
		cte := node.GetCommonTableExpr()
		s.collect(cte.GetCtequery().ProtoReflect(), scope)
		scope[cte.GetCtename()] = true
	}

	eachChild(stmt.ProtoReflect(), "with_clause", func(child protoreflect.Message) {
		s.collect(child, scope)
	})
}

// references returns the relation references in source order without
// repeats.
func (s *referenceSet) references(lines lineIndex) []core.RawReference {
	ordered := make([]rangeRef, len(s.refs))
	copy(ordered, s.refs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].location < ordered[j].location })

	seen := make(map[string]bool)
	out := make([]core.RawReference, 0, len(ordered))
	for _, r := range ordered {
		key := r.ref.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		r.ref.Span = lines.span(r.location)
		out = append(out, r.ref)
	}
	return out
}

// resolveQualifier maps a column qualifier to the relation it names.
func (s *referenceSet) resolveQualifier(qualifier string) string {
	if target, ok := s.aliases[qualifier]; ok {
		return target
	}
	return qualifier
}

// fromRelations lists the relations named directly in a FROM clause,
// looking through joins but not into subqueries.
func fromRelations(from []*pg_query.Node) []string {
	var out []string
	var visit func(n *pg_query.Node)
	visit = func(n *pg_query.Node) {
		switch {
		case n.GetRangeVar() != nil:
			rv := n.GetRangeVar()
			out = append(out, core.RawReference{
				Database: rv.GetCatalogname(),
				Schema:   rv.GetSchemaname(),
				Table:    rv.GetRelname(),
			}.String())
		case n.GetJoinExpr() != nil:
			visit(n.GetJoinExpr().GetLarg())
			visit(n.GetJoinExpr().GetRarg())
		}
	}
	for _, n := range from {
		visit(n)
	}
	return out
}

// stringFields returns the string parts of a name list such as
// ColumnRef.Fields or FuncCall.Funcname; "*" stands for A_Star.
func stringFields(nodes []*pg_query.Node) []string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch {
		case n.GetString_() != nil:
			parts = append(parts, n.GetString_().GetSval())
		case n.GetAStar() != nil:
			parts = append(parts, "*")
		}
	}
	return parts
}

func qualifierOf(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[:len(fields)-1], ".")
}
