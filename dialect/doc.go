// Package dialect provides the database dialect abstraction for strata.
//
// It defines the interfaces and constants used for database-specific
// operations, allowing the schema engine to target PostgreSQL, MySQL
// and SQLite through one surface.
//
// # Driver Interface
//
// The Driver interface is the single execution entry point:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed driver implementation and query
//     statistics.
//   - dialect/sql/schema: schema model, introspection, diffing and
//     migration.
package dialect
