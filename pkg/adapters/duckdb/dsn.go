package duckdb

import (
	"net/url"
	"sort"
	"strings"

	"github.com/leapstack-labs/cadac/pkg/core"
)

// Params is a parsed duckdb:// connection string.
//
//	duckdb:///var/lib/warehouse.duckdb?threads=4&extensions=httpfs,json
//
// An empty path or ":memory:" opens an in-memory database. Query
// parameters other than extensions are DuckDB settings and are passed to
// the driver unchanged.
type Params struct {
	// Path is the database file, empty for in-memory.
	Path string
	// Extensions are installed and loaded after connecting.
	Extensions []string
	// Settings are DuckDB configuration options (threads, memory_limit, ...).
	Settings map[string]string
}

// ParseConnectionString parses a duckdb:// connection string.
func ParseConnectionString(connStr string) (*Params, error) {
	invalid := func(reason string) error {
		return &core.InvalidConnectionStringError{Dialect: Dialect, Reason: reason}
	}

	rest, ok := strings.CutPrefix(connStr, scheme+"://")
	if !ok {
		return nil, invalid("must start with " + scheme + "://")
	}

	path, rawQuery, _ := strings.Cut(rest, "?")
	if path == ":memory:" {
		path = ""
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, invalid(err.Error())
	}

	p := &Params{Path: path, Settings: make(map[string]string)}
	for key, values := range query {
		if key == "extensions" {
			for _, v := range values {
				for _, ext := range strings.Split(v, ",") {
					if ext = strings.TrimSpace(ext); ext != "" {
						p.Extensions = append(p.Extensions, ext)
					}
				}
			}
			continue
		}
		if len(values) > 0 {
			p.Settings[key] = values[len(values)-1]
		}
	}

	for _, ext := range p.Extensions {
		if !isIdent(ext) {
			return nil, invalid("invalid extension name " + ext)
		}
	}
	return p, nil
}

// DSN returns the data source name understood by the go-duckdb driver.
func (p *Params) DSN() string {
	if len(p.Settings) == 0 {
		return p.Path
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := url.Values{}
	for _, k := range keys {
		query.Set(k, p.Settings[k])
	}
	return p.Path + "?" + query.Encode()
}

// InMemory reports whether the database lives in memory only.
func (p *Params) InMemory() bool {
	return p.Path == ""
}

func isIdent(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return s != ""
}
