package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect"
)

func TestPostgres_TypeSQLAliases(t *testing.T) {
	d := NewPostgres()
	for _, tt := range []struct {
		col  *Column
		want string
	}{
		{&Column{Name: "a", Type: "varchar", Length: "255"}, "character varying(255)"},
		{&Column{Name: "b", Type: "int"}, "integer"},
		{&Column{Name: "c", Type: "int8"}, "bigint"},
		{&Column{Name: "d", Type: "bool"}, "boolean"},
		{&Column{Name: "e", Type: "timestamptz"}, "timestamp with time zone"},
		{&Column{Name: "f", Type: "text"}, "text"},
		{&Column{Name: "g", Type: "serial"}, "integer"},
	} {
		got, err := d.typeSQL(tt.col)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.col.Name)
	}
}

func TestPostgres_TypeSQLNumeric(t *testing.T) {
	d := NewPostgres()
	p, s := 10, 2
	got, err := d.typeSQL(&Column{Name: "price", Type: "numeric", Precision: &p, Scale: &s})
	require.NoError(t, err)
	require.Equal(t, "numeric(10,2)", got)
}

func TestPostgres_TypeSQLEnum(t *testing.T) {
	d := NewPostgres()
	got, err := d.typeSQL(&Column{Name: "status", Type: "user_status", EnumName: "user_status", Enums: []string{"on", "off"}})
	require.NoError(t, err)
	require.Equal(t, "user_status", got)
}

func TestPostgres_TypeSQLMissingType(t *testing.T) {
	d := NewPostgres()
	_, err := d.typeSQL(&Column{Name: "ghost"})
	require.Error(t, err)
}

func TestPostgres_NormalizeDefault(t *testing.T) {
	d := NewPostgres()
	for _, tt := range []struct{ in, want string }{
		{"'active'::character varying", "'active'"},
		{"('active')", "'active'"},
		{"NOW()", "now()"},
		{"CURRENT_TIMESTAMP", "current_timestamp"},
		{"0", "0"},
		{"(0)", "0"},
		{"0::bigint", "0"},
	} {
		require.Equal(t, tt.want, d.normalizeDefault(tt.in), tt.in)
	}
}

func TestPostgres_ColumnDDL(t *testing.T) {
	d := NewPostgres()
	for _, tt := range []struct {
		col  *Column
		want string
	}{
		{
			&Column{Name: "id", Type: "bigint", Primary: true, Generated: GenerationIncrement},
			`"id" bigserial`,
		},
		{
			&Column{Name: "id", Type: "uuid", Primary: true, Generated: GenerationUUID},
			`"id" uuid DEFAULT gen_random_uuid()`,
		},
		{
			&Column{Name: "seq", Type: "bigint", Generated: GenerationIdentity},
			`"seq" bigint GENERATED BY DEFAULT AS IDENTITY NOT NULL`,
		},
		{
			&Column{Name: "email", Type: "varchar", Length: "128"},
			`"email" varchar(128) NOT NULL`,
		},
		{
			&Column{Name: "bio", Type: "text", Nullable: true},
			`"bio" text`,
		},
		{
			&Column{Name: "status", Type: "text", Default: strptr("'active'")},
			`"status" text NOT NULL DEFAULT 'active'`,
		},
		{
			&Column{Name: "full_name", Type: "text", GeneratedAs: "first_name || ' ' || last_name", GeneratedType: GeneratedStored},
			`"full_name" text GENERATED ALWAYS AS (first_name || ' ' || last_name) STORED NOT NULL`,
		},
	} {
		got, err := d.columnDDL(tt.col)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.col.Name)
	}
}

func TestPostgres_AlterEnumProtocol(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("users")
	from := &Column{Name: "status", Type: "user_status", EnumName: "user_status",
		Enums: []string{"active", "blocked"}, Default: strptr("'active'")}
	to := &Column{Name: "status", Type: "user_status", EnumName: "user_status",
		Enums: []string{"active", "blocked", "deleted"}, Default: strptr("'active'")}

	changes, err := d.modifyColumn(tbl, columnChange{kind: ChangeEnum, from: from, to: to})
	require.NoError(t, err)
	require.Len(t, changes, 6)

	var ups []string
	for _, ch := range changes {
		require.Len(t, ch.Up, 1)
		ups = append(ups, ch.Up[0].Stmt)
	}
	require.Equal(t, []string{
		`ALTER TYPE "user_status" RENAME TO "user_status_old"`,
		`CREATE TYPE "user_status" AS ENUM ('active', 'blocked', 'deleted')`,
		`ALTER TABLE "users" ALTER COLUMN "status" DROP DEFAULT`,
		`ALTER TABLE "users" ALTER COLUMN "status" TYPE "user_status" USING "status"::text::"user_status"`,
		`ALTER TABLE "users" ALTER COLUMN "status" SET DEFAULT 'active'`,
		`DROP TYPE "user_status_old"`,
	}, ups)

	// The down path, changes reversed, restores the old type exactly.
	plan := &Plan{Changes: changes}
	downs := stmts(plan.DownQueries())
	require.Equal(t, []string{
		`CREATE TYPE "user_status_old" AS ENUM ('active', 'blocked')`,
		`ALTER TABLE "users" ALTER COLUMN "status" DROP DEFAULT`,
		`ALTER TABLE "users" ALTER COLUMN "status" TYPE "user_status_old" USING "status"::text::"user_status_old"`,
		`ALTER TABLE "users" ALTER COLUMN "status" SET DEFAULT 'active'`,
		`DROP TYPE "user_status"`,
		`ALTER TYPE "user_status_old" RENAME TO "user_status"`,
	}, downs)
}

func TestPostgres_AlterEnumWithoutDefault(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("users")
	from := &Column{Name: "status", Type: "user_status", EnumName: "user_status", Enums: []string{"a"}}
	to := &Column{Name: "status", Type: "user_status", EnumName: "user_status", Enums: []string{"a", "b"}}

	changes, err := d.modifyColumn(tbl, columnChange{kind: ChangeEnum, from: from, to: to})
	require.NoError(t, err)
	// No default to detach or restore.
	require.Len(t, changes, 4)
}

func TestPostgres_AddIndexVariants(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("logs")

	ch := d.addIndex(tbl, &Index{Name: "IDX_logs_level", Columns: []string{"level"}})
	require.Equal(t, `CREATE INDEX "IDX_logs_level" ON "logs" ("level")`, ch.Up[0].Stmt)
	require.Equal(t, `DROP INDEX "IDX_logs_level"`, ch.Down[0].Stmt)

	ch = d.addIndex(tbl, &Index{Name: "IDX_logs_ts", Columns: []string{"ts"}, Unique: true, Where: "deleted_at IS NULL"})
	require.Equal(t, `CREATE UNIQUE INDEX "IDX_logs_ts" ON "logs" ("ts") WHERE deleted_at IS NULL`, ch.Up[0].Stmt)

	ch = d.addIndex(tbl, &Index{Name: "IDX_logs_src", Columns: []string{"src"}, Concurrent: true})
	require.Equal(t, `CREATE INDEX CONCURRENTLY "IDX_logs_src" ON "logs" ("src")`, ch.Up[0].Stmt)
}

func TestPostgres_SchemaQualifiedPaths(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("users").SetSchema("crm")
	ch := d.dropIndex(tbl, &Index{Name: "IDX_users_email", Columns: []string{"email"}})
	require.Equal(t, `DROP INDEX "crm"."IDX_users_email"`, ch.Up[0].Stmt)

	changes, err := d.createTable(tbl)
	require.NoError(t, err)
	require.Contains(t, changes[0].Up[0].Stmt, `CREATE TABLE "crm"."users"`)
}

func TestPostgres_RenameTableReversible(t *testing.T) {
	d := NewPostgres()
	ch := d.renameTable(NewTable("users"), "accounts")
	require.Equal(t, `ALTER TABLE "users" RENAME TO "accounts"`, ch.Up[0].Stmt)
	require.Equal(t, `ALTER TABLE "accounts" RENAME TO "users"`, ch.Down[0].Stmt)
}

func TestPostgres_TableComment(t *testing.T) {
	d := NewPostgres()
	ch, err := d.tableComment(NewTable("users"), "the people's table")
	require.NoError(t, err)
	require.Equal(t, `COMMENT ON TABLE "users" IS 'the people''s table'`, ch.Up[0].Stmt)
	require.Equal(t, `COMMENT ON TABLE "users" IS NULL`, ch.Down[0].Stmt)
}

func TestPostgres_CreateViewMaterialized(t *testing.T) {
	d := NewPostgres()
	ch, err := d.createView(&View{Name: "active_users", Definition: "SELECT * FROM users WHERE active", Materialized: true})
	require.NoError(t, err)
	require.Equal(t, `CREATE MATERIALIZED VIEW "active_users" AS SELECT * FROM users WHERE active`, ch.Up[0].Stmt)
	require.Equal(t, `DROP MATERIALIZED VIEW "active_users"`, ch.Down[0].Stmt)
}

func TestPostgres_DropTableIrreversible(t *testing.T) {
	d := NewPostgres()
	ch := d.dropTable(NewTable("users"))
	require.Equal(t, `DROP TABLE "users"`, ch.Up[0].Stmt)
	require.Empty(t, ch.Down)
}

func TestPostgres_AddForeignKeyDeferrable(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("posts")
	ch, err := d.addForeignKey(tbl, &ForeignKey{
		Columns: []string{"author_id"}, RefTable: "users", RefColumns: []string{"id"},
		OnDelete: Cascade, Deferrable: "INITIALLY DEFERRED",
	})
	require.NoError(t, err)
	require.Equal(t,
		`ALTER TABLE "posts" ADD CONSTRAINT "FK_posts_author_id" FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED`,
		ch.Up[0].Stmt)
}

func TestPostgres_ExclusionDDL(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("reservations")

	// Unnamed exclusions get a derived constraint name.
	ch, err := d.addExclusion(tbl, &Exclusion{Expression: "USING gist (during WITH &&)"})
	require.NoError(t, err)
	name := d.naming.ExclusionName("reservations", "USING gist (during WITH &&)")
	require.Equal(t,
		fmt.Sprintf(`ALTER TABLE "reservations" ADD CONSTRAINT %q EXCLUDE USING gist (during WITH &&)`, name),
		ch.Up[0].Stmt)
	require.Equal(t,
		fmt.Sprintf(`ALTER TABLE "reservations" DROP CONSTRAINT %q`, name),
		ch.Down[0].Stmt)

	ch, err = d.dropExclusion(tbl, &Exclusion{Name: "no_overlap", Expression: "USING gist (during WITH &&)"})
	require.NoError(t, err)
	require.Equal(t, `ALTER TABLE "reservations" DROP CONSTRAINT "no_overlap"`, ch.Up[0].Stmt)
	require.Equal(t,
		`ALTER TABLE "reservations" ADD CONSTRAINT "no_overlap" EXCLUDE USING gist (during WITH &&)`,
		ch.Down[0].Stmt)
}

func TestPostgres_LoadExclusions(t *testing.T) {
	d := NewPostgres()
	r, mk := newMockRunner(t, dialect.Postgres)
	ctx := context.Background()

	mk.ExpectQuery(escape("con.contype = 'x'")).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "conname", "definition"}).
			AddRow("reservations", "XCL_reservations_1a2b3c4d", "EXCLUDE USING gist (during WITH &&)"))

	tbl := NewTable("reservations")
	byName := map[string]*Table{"reservations": tbl}
	require.NoError(t, d.loadExclusions(ctx, r, "", []string{"reservations"}, byName))
	require.Len(t, tbl.Exclusions, 1)
	// The leading EXCLUDE keyword is stripped from the catalog definition.
	require.Equal(t, "USING gist (during WITH &&)", tbl.Exclusions[0].Expression)
	require.Equal(t, "XCL_reservations_1a2b3c4d", tbl.Exclusions[0].Name)
	require.NoError(t, r.Release(nil))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestPostgres_ModifyColumnEnumWithNullability(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("users")
	from := &Column{Name: "status", Type: "user_status", EnumName: "user_status",
		Enums: []string{"active", "blocked"}, Nullable: true}
	to := &Column{Name: "status", Type: "user_status", EnumName: "user_status",
		Enums: []string{"active", "blocked", "deleted"}}

	changes, err := d.modifyColumn(tbl, columnChange{kind: ChangeEnum | ChangeNullability, from: from, to: to})
	require.NoError(t, err)
	// Four enum protocol steps (no default to detach), then the nullability change.
	require.Len(t, changes, 5)
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "status" SET NOT NULL`,
		changes[4].Up[0].Stmt)
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "status" DROP NOT NULL`,
		changes[4].Down[0].Stmt)
}

func TestPostgres_AddIndexSpatial(t *testing.T) {
	d := NewPostgres()
	tbl := NewTable("places")
	ch := d.addIndex(tbl, &Index{Name: "IDX_places_geom", Columns: []string{"geom"}, Spatial: true})
	require.Equal(t, `CREATE INDEX "IDX_places_geom" ON "places" USING gist ("geom")`, ch.Up[0].Stmt)
	require.Equal(t, `DROP INDEX "IDX_places_geom"`, ch.Down[0].Stmt)
}
