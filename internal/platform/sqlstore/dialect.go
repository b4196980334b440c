package sqlstore

import (
	"fmt"
	"regexp"
)

// Dialect identifies the SQL backend a store talks to.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case DialectPostgres, DialectSQLite:
		return Dialect(name), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind converts $N placeholders into the dialect's native form.
// SQLite understands numbered ?N parameters.
func (d Dialect) Rebind(query string) string {
	if d == DialectPostgres {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?$1")
}

// lockClause is appended to a SELECT that starts a read-modify-write.
// SQLite serializes writers through a single connection instead.
func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// resultColumn reads the JSON result column as text.
func (d Dialect) resultColumn() string {
	if d == DialectPostgres {
		return "result::text"
	}
	return "result"
}
