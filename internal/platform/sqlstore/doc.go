// Package sqlstore implements the task store on top of database/sql, using
// the pgx driver for PostgreSQL and modernc.org/sqlite for SQLite. Schema
// migrations for both backends are embedded and applied with goose.
package sqlstore
