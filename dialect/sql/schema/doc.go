// Package schema provides schema inspection, diffing and migration for
// PostgreSQL, MySQL and SQLite.
//
// The package works on a declarative model: callers describe the tables they
// want with Table, Column, Index and ForeignKey values, and the Builder
// brings the connected database to that state. Every run follows the same
// pipeline: load the current schema from the catalog, diff it against the
// declared model, plan reversible DDL changes, and execute them.
//
// # Building a Schema
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b, err := schema.NewBuilder(drv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.Build(ctx, users, posts); err != nil {
//	    log.Fatal(err)
//	}
//
// Destructive changes are opt-in: columns and indexes that exist in the
// database but not in the declared model are kept unless WithDropColumn and
// WithDropIndex are set.
//
// # Versioned Migrations
//
// Instead of applying changes directly, the planned DDL can be written to a
// migration directory in the format of golang-migrate, goose, dbmate, Flyway
// or Liquibase:
//
//	dir, err := migrate.NewLocalDir("migrations")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b, err := schema.NewBuilder(drv, schema.WithDir(dir))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.Diff(ctx, users, posts); err != nil {
//	    log.Fatal(err)
//	}
//
// Each planned change carries both its forward and its reverse statements,
// so generated migration files include the down direction.
//
// # Transactions
//
// QueryRunner executes the plan. Transactions nest through savepoints, so a
// failed inner step rolls back to its savepoint without discarding the outer
// work. On dialects without transactional DDL (MySQL), statements are applied
// one at a time.
//
// # Validation
//
// ValidateDiff reports breaking changes, such as dropped tables or columns
// changing from NULL to NOT NULL, before anything touches the database:
//
//	result := schema.ValidateDiff(current, desired)
//	if result.HasBreakingChanges() {
//	    log.Fatal(result)
//	}
package schema
