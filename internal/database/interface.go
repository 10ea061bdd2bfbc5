// Package database defines the read-only session contract the catalog layer
// runs on. Layers above this package never import a driver package directly.
package database

import "context"

// Session is one database connection holding one read-only transaction for
// its whole lifetime. It is not safe for concurrent use: catalog traversal
// is strictly sequential so that every query sees the same snapshot.
//
// The purpose argument names what a query is for (e.g. `columns of
// "public"."users"`). It becomes the message of any error the query raises.
type Session interface {
	// Query runs a statement whose result is small and bounded (per-relation
	// detail lookups). The caller must drain or Close the rows before issuing
	// the next statement.
	Query(ctx context.Context, purpose, sql string, args ...any) (Rows, error)

	// QueryOne runs a statement expected to return at most one row and scans
	// it into dest. It reports false, without error, when there is no row.
	QueryOne(ctx context.Context, purpose, sql string, args []any, dest ...any) (bool, error)

	// Cursor opens a server-side cursor over sql and returns rows that are
	// fetched in bounded batches as they are consumed. Other statements may
	// run on the session while a cursor is open.
	Cursor(ctx context.Context, purpose, sql string, args ...any) (Rows, error)

	// Close ends the transaction without writing anything and releases the
	// connection.
	Close(ctx context.Context) error
}

// Rows is an abstraction over a result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
