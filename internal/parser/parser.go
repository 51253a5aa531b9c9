// Package parser extracts model metadata from SQL source.
//
// Parsing is grammar driven: the PostgreSQL parser (pg_query) produces the
// statement tree that table references and select-list columns are read
// from, and its scanner produces the token stream that comments are attached
// from. Nothing here does I/O.
package parser

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	pgparser "github.com/pganalyze/pg_query_go/v6/parser"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Extract parses one model's SQL and returns its metadata.
//
// The source must hold exactly one SELECT statement. Syntax errors are
// returned as *core.ParseError and additional statements as
// *core.MultipleStatementsError.
func Extract(identity core.ModelIdentity, sql string) (*core.ModelMetadata, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, newParseError(identity.FilePath, err)
	}

	switch len(result.Stmts) {
	case 0:
		return nil, &core.ParseError{Path: identity.FilePath, Message: "no SQL statement found", Offset: -1}
	case 1:
	default:
		return nil, &core.MultipleStatementsError{Path: identity.FilePath, Count: len(result.Stmts)}
	}

	raw := result.Stmts[0]
	stmt := raw.GetStmt().GetSelectStmt()
	if stmt == nil {
		return nil, &core.ParseError{
			Path:    identity.FilePath,
			Message: fmt.Sprintf("model must be a SELECT statement, found %s", nodeKind(raw.GetStmt())),
			Offset:  int(raw.GetStmtLocation()),
		}
	}

	if into := intoClause(stmt); into != nil {
		return nil, &core.ParseError{
			Path:    identity.FilePath,
			Message: "model must not use SELECT INTO",
			Offset:  int(into.GetRel().GetLocation()),
		}
	}

	comments, err := scanComments(sql)
	if err != nil {
		return nil, newParseError(identity.FilePath, err)
	}

	lines := newLineIndex(sql)
	refs := collectReferences(stmt)

	meta := &core.ModelMetadata{
		Identity:    identity,
		Description: comments.leading(),
		References:  refs.references(lines),
		Aliases:     refs.aliases,
		SQL:         sql,
	}

	meta.Columns = selectColumns(stmt, refs)
	attachColumnDescriptions(meta.Columns, stmt, comments, lines)

	return meta, nil
}

func newParseError(path string, err error) *core.ParseError {
	pe := &core.ParseError{Path: path, Message: err.Error(), Offset: -1}
	var pgErr *pgparser.Error
	if errors.As(err, &pgErr) {
		pe.Message = pgErr.Message
		if pgErr.Cursorpos > 0 {
			pe.Offset = pgErr.Cursorpos - 1
		}
	}
	return pe
}

// intoClause returns the INTO clause of a select or of any arm of a set
// operation.
func intoClause(stmt *pg_query.SelectStmt) *pg_query.IntoClause {
	if stmt == nil {
		return nil
	}
	if into := stmt.GetIntoClause(); into != nil {
		return into
	}
	if into := intoClause(stmt.GetLarg()); into != nil {
		return into
	}
	return intoClause(stmt.GetRarg())
}

// nodeKind names the statement type held by a node, e.g. "CreateStmt".
func nodeKind(n *pg_query.Node) string {
	if n == nil || n.GetNode() == nil {
		return "empty statement"
	}
	name := fmt.Sprintf("%T", n.GetNode())
	name = name[strings.LastIndex(name, ".")+1:]
	return strings.TrimPrefix(name, "Node_")
}

// lineIndex maps byte offsets to 1-based line and column numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (l lineIndex) line(offset int) int {
	return sort.Search(len(l), func(i int) bool { return l[i] > offset })
}

func (l lineIndex) span(offset int) core.Span {
	line := l.line(offset)
	return core.Span{Offset: offset, Line: line, Column: offset - l[line-1] + 1}
}
