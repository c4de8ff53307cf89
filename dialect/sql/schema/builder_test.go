package schema

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBuilder(d sqlDialect, opts ...BuilderOption) *Builder {
	b := &Builder{
		d:        d,
		caps:     d.cap(),
		naming:   NewNaming(d.cap().MaxIdentifierLen),
		withFKs:  true,
		metadata: DefaultMetadataTable,
		log:      slog.Default(),
		tables:   make(map[string]*Table),
		views:    make(map[string]*View),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func TestTableChanges_CreateNewTable(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	users := NewTable("users")
	users.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, Generated: GenerationIncrement})
	users.AddColumn(&Column{Name: "email", Type: "varchar", Unique: true})
	users.AddIndex("IDX_users_email", false, []string{"email"})

	changes, err := b.tableChanges(users, nil)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	create := changes[0].Up[0].Stmt
	require.Contains(t, create, `CREATE TABLE "users"`)
	require.Contains(t, create, `"id" bigserial`)
	require.Contains(t, create, `CONSTRAINT "PK_users_id" PRIMARY KEY ("id")`)
	require.Contains(t, create, `CONSTRAINT "UQ_users_email" UNIQUE ("email")`)
	require.Equal(t, `DROP TABLE "users"`, changes[0].Down[0].Stmt)
	require.Contains(t, changes[1].Up[0].Stmt, `CREATE INDEX "IDX_users_email"`)
}

func TestTableChanges_AddColumn(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "body", Type: "text", Nullable: true})
	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})

	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, `ALTER TABLE "posts" ADD COLUMN "body" text`, changes[0].Up[0].Stmt)
	require.Equal(t, `ALTER TABLE "posts" DROP COLUMN "body"`, changes[0].Down[0].Stmt)
}

func TestTableChanges_DropColumnGated(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "legacy", Type: "text", Nullable: true})

	b := newTestBuilder(NewPostgres())
	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Empty(t, changes)

	b = newTestBuilder(NewPostgres(), WithDropColumn(true))
	changes, err = b.tableChanges(want, have)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, `ALTER TABLE "posts" DROP COLUMN "legacy"`, changes[0].Up[0].Stmt)
}

func TestTableChanges_DropIndexGated(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddIndex("IDX_posts_stale", false, []string{"id"})

	b := newTestBuilder(NewPostgres())
	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Empty(t, changes)

	b = newTestBuilder(NewPostgres(), WithDropIndex(true))
	changes, err = b.tableChanges(want, have)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, `DROP INDEX "IDX_posts_stale"`, changes[0].Up[0].Stmt)
}

func TestTableChanges_ModifyOrder(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	want := NewTable("users")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "name", Type: "text", Default: strptr("'n/a'")})
	have := NewTable("users")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "name", Type: "character varying", Length: "255", Nullable: true})

	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	require.Contains(t, changes[0].Up[0].Stmt, `TYPE text USING "name"::text`)
	require.Contains(t, changes[1].Up[0].Stmt, "SET NOT NULL")
	require.Contains(t, changes[2].Up[0].Stmt, "SET DEFAULT 'n/a'")
	// Each step reverses itself.
	require.Contains(t, changes[0].Down[0].Stmt, "character varying(255)")
	require.Contains(t, changes[1].Down[0].Stmt, "DROP NOT NULL")
	require.Contains(t, changes[2].Down[0].Stmt, "DROP DEFAULT")
}

func TestTableChanges_SkipChanges(t *testing.T) {
	b := newTestBuilder(NewPostgres(), WithSkipChanges(ChangeNullability|ChangeDefault))
	want := NewTable("users")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "name", Type: "text", Default: strptr("'n/a'")})
	have := NewTable("users")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "name", Type: "text", Nullable: true})

	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestTableChanges_ExclusionLifecycle(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	want := NewTable("reservations")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "during", Type: "tstzrange"})
	want.AddExclusion("", "USING gist (during WITH &&)")
	have := NewTable("reservations")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "during", Type: "tstzrange"})
	have.AddExclusion("XCL_stale", "USING gist (room WITH =)")

	changes, err := b.tableChanges(want, have)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t,
		`ALTER TABLE "reservations" DROP CONSTRAINT "XCL_stale"`,
		changes[0].Up[0].Stmt)
	require.Equal(t,
		`ALTER TABLE "reservations" ADD CONSTRAINT "XCL_stale" EXCLUDE USING gist (room WITH =)`,
		changes[0].Down[0].Stmt)
	add := changes[1].Up[0].Stmt
	require.Contains(t, add, `ALTER TABLE "reservations" ADD CONSTRAINT`)
	require.Contains(t, add, `EXCLUDE USING gist (during WITH &&)`)
	require.Contains(t, add, `"XCL_reservations_`)
}

func TestPlanForeignKeys_AfterAllTables(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	users := NewTable("users")
	users.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	posts := NewTable("posts")
	posts.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	posts.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	posts.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"}, OnDelete: Cascade,
	})

	plan := &Plan{}
	require.NoError(t, b.planForeignKeys([]*Table{posts, users}, map[string]*Table{}, plan))
	require.Len(t, plan.Changes, 1)
	up := plan.Changes[0].Up[0].Stmt
	require.Equal(t, `ALTER TABLE "posts" ADD CONSTRAINT "FK_posts_author_id" FOREIGN KEY ("author_id") REFERENCES "users" ("id") ON DELETE CASCADE`, up)
}

func TestPlanForeignKeys_SkipsExisting(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	posts := NewTable("posts")
	posts.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	posts.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	fk := &ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"},
	}
	posts.AddForeignKey(fk)

	cur := NewTable("posts")
	cur.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	cur.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	// Same shape under a server-assigned name.
	cur.AddForeignKey(&ForeignKey{
		Name: "posts_author_id_fkey", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"},
	})

	plan := &Plan{}
	require.NoError(t, b.planForeignKeys([]*Table{posts}, map[string]*Table{"posts": cur}, plan))
	require.Empty(t, plan.Changes)
}

func TestPlanForeignKeys_InlineDialectSkipsNewTables(t *testing.T) {
	b := newTestBuilder(NewSQLite())
	posts := NewTable("posts")
	posts.AddColumn(&Column{Name: "id", Type: "integer", Primary: true})
	posts.AddColumn(&Column{Name: "author_id", Type: "integer"})
	posts.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"},
	})

	plan := &Plan{}
	// New table: the keys go inline in CREATE TABLE instead.
	require.NoError(t, b.planForeignKeys([]*Table{posts}, map[string]*Table{}, plan))
	require.Empty(t, plan.Changes)
}

func TestCascadeTableRename_DerivedNamesOnly(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	tbl := NewTable("users")
	tbl.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	tbl.AddColumn(&Column{Name: "email", Type: "varchar"})
	tbl.AddColumn(&Column{Name: "org_id", Type: "bigint"})
	tbl.AddIndex("IDX_users_email", false, []string{"email"})
	tbl.AddUnique("UQ_custom", []string{"email"})
	tbl.AddForeignKey(&ForeignKey{
		Name: "FK_users_org_id", Columns: []string{"org_id"},
		RefTable: "orgs", RefColumns: []string{"id"},
	})
	tbl.AddCheck(b.naming.CheckName("users", "org_id > 0"), "org_id > 0")
	tbl.AddExclusion(b.naming.ExclusionName("users", "USING gist (email WITH =)"), "USING gist (email WITH =)")

	tbl.Name = "accounts"
	changes, err := b.cascadeTableRename(tbl, "users")
	require.NoError(t, err)

	var ups []string
	for _, ch := range changes {
		for _, q := range ch.Up {
			ups = append(ups, q.Stmt)
		}
	}
	joined := strings.Join(ups, "\n")
	require.Contains(t, joined, `RENAME CONSTRAINT "PK_users_id" TO "PK_accounts_id"`)
	require.Contains(t, joined, `ALTER INDEX "IDX_users_email" RENAME TO "IDX_accounts_email"`)
	require.Contains(t, joined, `RENAME CONSTRAINT "FK_users_org_id" TO "FK_accounts_org_id"`)
	require.Contains(t, joined, fmt.Sprintf(`RENAME CONSTRAINT %q TO %q`,
		b.naming.CheckName("users", "org_id > 0"), b.naming.CheckName("accounts", "org_id > 0")))
	require.Contains(t, joined, fmt.Sprintf(`RENAME CONSTRAINT %q TO %q`,
		b.naming.ExclusionName("users", "USING gist (email WITH =)"), b.naming.ExclusionName("accounts", "USING gist (email WITH =)")))
	// The user-chosen unique name is untouched.
	require.NotContains(t, joined, "UQ_custom")
	require.Equal(t, "PK_accounts_id", tbl.PKName)
	require.Equal(t, "IDX_accounts_email", tbl.Indexes[0].Name)
	require.Equal(t, "UQ_custom", tbl.Uniques[0].Name)
	require.Equal(t, b.naming.CheckName("accounts", "org_id > 0"), tbl.Checks[0].Name)
	require.Equal(t, b.naming.ExclusionName("accounts", "USING gist (email WITH =)"), tbl.Exclusions[0].Name)
}

func TestCascadeColumnRename_DerivedNamesOnly(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	tbl := NewTable("users")
	id := &Column{Name: "account_id", Type: "bigint", Primary: true} // already renamed from "id"
	tbl.AddColumn(id)
	tbl.AddColumn(&Column{Name: "email", Type: "varchar"})
	tbl.AddIndex("IDX_users_id", false, []string{"id"})
	tbl.AddUnique("UQ_handwritten", []string{"id", "email"})

	changes, err := b.cascadeColumnRename(tbl, "id", "account_id")
	require.NoError(t, err)

	var ups []string
	for _, ch := range changes {
		for _, q := range ch.Up {
			ups = append(ups, q.Stmt)
		}
	}
	joined := strings.Join(ups, "\n")
	require.Contains(t, joined, `RENAME CONSTRAINT "PK_users_id" TO "PK_users_account_id"`)
	require.Contains(t, joined, `ALTER INDEX "IDX_users_id" RENAME TO "IDX_users_account_id"`)
	require.NotContains(t, joined, "UQ_handwritten")
	// Constraint column lists follow the rename even when the name does not.
	require.Equal(t, []string{"account_id"}, tbl.Indexes[0].Columns)
	require.Equal(t, []string{"account_id", "email"}, tbl.Uniques[0].Columns)
	require.Equal(t, "UQ_handwritten", tbl.Uniques[0].Name)
	require.Equal(t, "PK_users_account_id", tbl.PKName)
}

func TestBuilderDiffer_Hooks(t *testing.T) {
	var seen []string
	b := newTestBuilder(NewPostgres(), WithDiffHook(func(next Differ) Differ {
		return DiffFunc(func(want, have *Table) ([]*Change, error) {
			seen = append(seen, want.Name)
			return next.Diff(want, have)
		})
	}))
	users := NewTable("users")
	users.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})

	changes, err := b.differ().Diff(users, nil)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	require.Equal(t, []string{"users"}, seen)
}
