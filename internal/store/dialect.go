package store

import (
	"strconv"
	"strings"
)

// Dialect selects SQL syntax differences between backends.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// rebind rewrites '?' placeholders into the dialect's form.
// Queries in this package never contain '?' inside string literals.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// idSetClause returns the predicate matching id against a single bound
// collection parameter, so bulk reads are one statement with two
// parameters regardless of key count.
func (d Dialect) idSetClause() string {
	if d == DialectPostgres {
		return "id = ANY(?)"
	}
	return "id IN (SELECT value FROM json_each(?))"
}
