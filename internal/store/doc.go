// Package store defines the persistence contract for tasks and the store
// error taxonomy shared by its implementations. The engine depends only on
// these interfaces; the SQL implementation lives in platform/sqlstore.
package store
