package parser

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/leapstack-labs/cadac/pkg/core"
)

type scanToken struct {
	start, end int
	comment    bool
	text       string
}

// tokenStream is the scanner output for a model, comments included.
type tokenStream struct {
	tokens []scanToken
}

func scanComments(sql string) (*tokenStream, error) {
	res, err := pg_query.Scan(sql)
	if err != nil {
		return nil, err
	}

	ts := &tokenStream{tokens: make([]scanToken, 0, len(res.GetTokens()))}
	for _, tok := range res.GetTokens() {
		start, end := int(tok.GetStart()), int(tok.GetEnd())
		if start < 0 || end > len(sql) || start > end {
			continue
		}
		kind := tok.GetToken()
		isComment := kind == pg_query.Token_SQL_COMMENT || kind == pg_query.Token_C_COMMENT
		text := sql[start:end]
		if isComment {
			text = commentText(text)
		}
		ts.tokens = append(ts.tokens, scanToken{start: start, end: end, comment: isComment, text: text})
	}
	return ts, nil
}

// commentText strips comment markers and collapses whitespace.
func commentText(raw string) string {
	switch {
	case strings.HasPrefix(raw, "--"):
		raw = raw[2:]
	case strings.HasPrefix(raw, "/*"):
		raw = strings.TrimSuffix(raw[2:], "*/")
		lines := strings.Split(raw, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimPrefix(strings.TrimSpace(l), "*")
		}
		raw = strings.Join(lines, " ")
	}
	return strings.Join(strings.Fields(raw), " ")
}

// leading joins the comments that precede the first statement token.
func (ts *tokenStream) leading() string {
	var parts []string
	for _, tok := range ts.tokens {
		if !tok.comment {
			break
		}
		if tok.text != "" {
			parts = append(parts, tok.text)
		}
	}
	return strings.Join(parts, " ")
}

// commentsBetween returns the non-empty comments starting in [from, to).
func (ts *tokenStream) commentsBetween(from, to int) []scanToken {
	var out []scanToken
	for _, tok := range ts.tokens {
		if tok.start >= to {
			break
		}
		if tok.comment && tok.start >= from && tok.text != "" {
			out = append(out, tok)
		}
	}
	return out
}

// prevReal returns the index of the last non-comment token ending at or
// before offset, or -1.
func (ts *tokenStream) prevReal(offset int) int {
	idx := -1
	for i, tok := range ts.tokens {
		if tok.start >= offset {
			break
		}
		if !tok.comment && tok.end <= offset {
			idx = i
		}
	}
	return idx
}

// lastReal returns the index of the last non-comment token starting in
// [from, to), ignoring a separating comma at the end, or -1.
func (ts *tokenStream) lastReal(from, to int) int {
	idx, prev := -1, -1
	for i, tok := range ts.tokens {
		if tok.start >= to {
			break
		}
		if tok.comment || tok.start < from {
			continue
		}
		prev, idx = idx, i
	}
	if idx >= 0 && ts.tokens[idx].text == "," {
		return prev
	}
	return idx
}

// clauseKeywords end a select list when met outside parentheses.
var clauseKeywords = map[string]bool{
	"from": true, "into": true, "where": true, "group": true, "having": true,
	"window": true, "order": true, "limit": true, "offset": true, "fetch": true,
	"for": true, "union": true, "intersect": true, "except": true, ";": true,
}

// selectListEnd finds where the select list that contains offset ends.
func (ts *tokenStream) selectListEnd(offset int) int {
	depth := 0
	prev := ""
	for _, tok := range ts.tokens {
		if tok.comment || tok.start < offset {
			continue
		}
		word := strings.ToLower(tok.text)
		switch word {
		case "(", "[":
			depth++
		case ")", "]":
			depth--
			if depth < 0 {
				return tok.start
			}
		default:
			if depth == 0 && clauseKeywords[word] {
				// IS DISTINCT FROM and WITHIN GROUP stay inside the expression.
				if !(word == "from" && prev == "distinct") && !(word == "group" && prev == "within") {
					return tok.start
				}
			}
		}
		prev = word
	}
	if n := len(ts.tokens); n > 0 {
		return ts.tokens[n-1].end
	}
	return offset
}

// attachColumnDescriptions fills column descriptions from comments. A
// comment between the previous token and an item describes that item. A
// comment on the same line as an item's last token describes that item
// when it has no comment of its own above it.
func attachColumnDescriptions(cols []core.ColumnMetadata, stmt *pg_query.SelectStmt, ts *tokenStream, lines lineIndex) {
	targets := topLevelSelect(stmt).GetTargetList()
	if len(targets) == 0 || len(targets) != len(cols) {
		return
	}

	starts := make([]int, len(targets))
	for i, t := range targets {
		starts[i] = int(t.GetResTarget().GetLocation())
		if starts[i] < 0 {
			return
		}
	}
	end := ts.selectListEnd(starts[len(starts)-1])

	prevItemLine := -1
	for i := range cols {
		hi := end
		if i+1 < len(starts) {
			hi = starts[i+1]
		}

		from := 0
		if p := ts.prevReal(starts[i]); p >= 0 {
			from = ts.tokens[p].end
		}
		var lead []string
		for _, c := range ts.commentsBetween(from, starts[i]) {
			if i > 0 && lines.line(c.start) == prevItemLine {
				continue
			}
			lead = append(lead, c.text)
		}

		var trail []string
		if last := ts.lastReal(starts[i], hi); last >= 0 {
			tok := ts.tokens[last]
			prevItemLine = lines.line(tok.end - 1)
			for _, c := range ts.commentsBetween(tok.end, hi) {
				if lines.line(c.start) == prevItemLine {
					trail = append(trail, c.text)
				}
			}
		}

		switch {
		case len(lead) > 0:
			cols[i].Description = strings.Join(lead, " ")
		case len(trail) > 0:
			cols[i].Description = strings.Join(trail, " ")
		}
	}
}
