package store

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavor behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName returns the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
// Queries in this package never contain a literal '?'.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

// parseDSN splits a DSN into the dialect and the driver-specific source.
//
//	postgres://u:p@host/db   -> postgres, unchanged
//	sqlite:///var/graph.db   -> sqlite, /var/graph.db
//	sqlite:graph.db          -> sqlite, graph.db
//	./graph.db               -> sqlite, ./graph.db
func parseDSN(dsn string) (Dialect, string) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, dsn
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, dsn[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return DialectSQLite, dsn[len("sqlite:"):]
	default:
		return DialectSQLite, dsn
	}
}
