package schema

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/sqltool"
)

// Diff writes the plan converging the connected database on the declared
// tables into the configured migration directory, under a timestamp version
// and a generic name.
func (b *Builder) Diff(ctx context.Context, tables ...*Table) error {
	return b.NamedDiff(ctx, "changes", tables...)
}

// NamedDiff is Diff with a caller-chosen migration name. The directory's
// checksum file is verified before and rewritten after, so concurrent or
// manual edits are detected the way the migration tools expect.
func (b *Builder) NamedDiff(ctx context.Context, name string, tables ...*Table) error {
	if b.dir == nil {
		return errors.New("schema: no migration directory given")
	}
	if err := migrate.Validate(b.dir); err != nil {
		return fmt.Errorf("schema: validating migration directory: %w", err)
	}
	plan, err := b.Log(ctx, tables...)
	if err != nil {
		return err
	}
	if plan.Empty() {
		if b.errNoPlan {
			return migrate.ErrNoPlan
		}
		return nil
	}
	mp := &migrate.Plan{
		Version: time.Now().UTC().Format("20060102150405"),
		Name:    name,
	}
	for _, c := range plan.Changes {
		for i, q := range c.Up {
			mc := &migrate.Change{Cmd: q.Stmt, Args: q.Args}
			if i == 0 {
				mc.Comment = c.Comment
				if len(c.Down) > 0 {
					reverse := make([]string, 0, len(c.Down))
					for j := len(c.Down) - 1; j >= 0; j-- {
						reverse = append(reverse, c.Down[j].Stmt)
					}
					mc.Reverse = reverse
				}
			}
			mp.Changes = append(mp.Changes, mc)
		}
	}
	files, err := b.formatter().Format(mp)
	if err != nil {
		return fmt.Errorf("schema: formatting migration plan: %w", err)
	}
	for _, f := range files {
		if err := b.dir.WriteFile(f.Name(), f.Bytes()); err != nil {
			return fmt.Errorf("schema: writing migration file %q: %w", f.Name(), err)
		}
	}
	sum, err := b.dir.Checksum()
	if err != nil {
		return fmt.Errorf("schema: hashing migration directory: %w", err)
	}
	return migrate.WriteSumFile(b.dir, sum)
}

// formatter returns the configured formatter, or infers one from the
// directory layout of the migration tool in use.
func (b *Builder) formatter() migrate.Formatter {
	if b.fmt != nil {
		return b.fmt
	}
	switch b.dir.(type) {
	case *sqltool.GolangMigrateDir:
		return sqltool.GolangMigrateFormatter
	case *sqltool.GooseDir:
		return sqltool.GooseFormatter
	case *sqltool.DBMateDir:
		return sqltool.DBMateFormatter
	case *sqltool.FlywayDir:
		return sqltool.FlywayFormatter
	case *sqltool.LiquibaseDir:
		return sqltool.LiquibaseFormatter
	default:
		return migrate.DefaultFormatter
	}
}
