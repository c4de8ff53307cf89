package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestColumnChanged_NoChange(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "name", Type: "varchar", Length: "255"}
	have := &Column{Name: "name", Type: "character varying", Length: "255"}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, NoChange, kind)
}

func TestColumnChanged_Type(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "name", Type: "text"}
	have := &Column{Name: "name", Type: "character varying", Length: "255"}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.True(t, kind.Is(ChangeType))
	require.False(t, kind.Is(ChangeNullability))
}

func TestColumnChanged_LengthIsTypeChange(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "name", Type: "varchar", Length: "512"}
	have := &Column{Name: "name", Type: "character varying", Length: "255"}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.True(t, kind.Is(ChangeType))
}

func TestColumnChanged_Nullability(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "bio", Type: "text", Nullable: true}
	have := &Column{Name: "bio", Type: "text"}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, ChangeNullability, kind)
}

func TestColumnChanged_PrimaryIgnoresNullability(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "id", Type: "bigint", Primary: true}
	have := &Column{Name: "id", Type: "bigint", Primary: true, Nullable: true}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, NoChange, kind)
}

func TestColumnChanged_Default(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "status", Type: "text", Default: strptr("'active'")}
	// The server reports defaults wrapped in a cast.
	have := &Column{Name: "status", Type: "text", Default: strptr("'active'::text")}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, NoChange, kind)

	have.Default = strptr("'inactive'::text")
	kind, err = columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, ChangeDefault, kind)
}

func TestColumnChanged_Unique(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "email", Type: "text", Unique: true}
	have := &Column{Name: "email", Type: "text"}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, ChangeUnique, kind)
}

func TestColumnChanged_EnumOrderSensitive(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "status", Type: "status", EnumName: "status", Enums: []string{"active", "blocked", "deleted"}}
	have := &Column{Name: "status", Type: "status", EnumName: "status", Enums: []string{"active", "blocked"}}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, ChangeEnum, kind)

	have.Enums = []string{"blocked", "active", "deleted"}
	kind, err = columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, ChangeEnum, kind)

	have.Enums = []string{"active", "blocked", "deleted"}
	kind, err = columnChanged(d, want, have)
	require.NoError(t, err)
	require.Equal(t, NoChange, kind)
}

func TestColumnChanged_CombinedKinds(t *testing.T) {
	d := NewPostgres()
	want := &Column{Name: "name", Type: "text", Nullable: false, Default: strptr("'n/a'")}
	have := &Column{Name: "name", Type: "character varying", Length: "255", Nullable: true}
	kind, err := columnChanged(d, want, have)
	require.NoError(t, err)
	require.True(t, kind.Is(ChangeType))
	require.True(t, kind.Is(ChangeNullability))
	require.True(t, kind.Is(ChangeDefault))
	require.False(t, kind.Is(ChangeUnique))
}

func TestDiffTables_AddAndDropColumns(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "title", Type: "varchar", Length: "255"})
	want.AddColumn(&Column{Name: "body", Type: "text", Nullable: true})

	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "title", Type: "character varying", Length: "255"})
	have.AddColumn(&Column{Name: "legacy", Type: "text", Nullable: true})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.Len(t, diff.addColumns, 1)
	require.Equal(t, "body", diff.addColumns[0].Name)
	require.Len(t, diff.dropColumns, 1)
	require.Equal(t, "legacy", diff.dropColumns[0].Name)
	require.Empty(t, diff.modifyColumns)
}

func TestDiffTables_IndexRedefinition(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	want.AddColumn(&Column{Name: "created_at", Type: "timestamptz"})
	want.AddIndex("IDX_posts_author_id", false, []string{"author_id", "created_at"})

	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	have.AddColumn(&Column{Name: "created_at", Type: "timestamp with time zone"})
	have.AddIndex("IDX_posts_author_id", false, []string{"author_id"})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	// Same name, different shape: drop and recreate.
	require.Len(t, diff.dropIndexes, 1)
	require.Len(t, diff.addIndexes, 1)
	require.Equal(t, []string{"author_id", "created_at"}, diff.addIndexes[0].Columns)
}

func TestDiffTables_UniqueByShapeNotName(t *testing.T) {
	want := NewTable("users")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "email", Type: "varchar"})
	want.AddUnique("users_email_key", []string{"email"})

	have := NewTable("users")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "email", Type: "character varying", Length: "255"})
	have.AddUnique("legacy_email_unique", []string{"email"})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	// Identical column shape under a different name is not churned.
	require.Empty(t, diff.addUniques)
	require.Empty(t, diff.dropUniques)
}

func TestDiffTables_ForeignKeyActionChange(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	want.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"}, OnDelete: Cascade,
	})

	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	have.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"}, OnDelete: SetNull,
	})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.Len(t, diff.dropForeignKeys, 1)
	require.Len(t, diff.addForeignKeys, 1)
}

func TestDiffTables_EmptyDefaultedAction(t *testing.T) {
	want := NewTable("posts")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	want.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"},
	})

	have := NewTable("posts")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "author_id", Type: "bigint"})
	have.AddForeignKey(&ForeignKey{
		Name: "FK_posts_author_id", Columns: []string{"author_id"},
		RefTable: "users", RefColumns: []string{"id"}, OnDelete: NoAction, OnUpdate: NoAction,
	})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.True(t, diff.empty())
}

func TestDiffTables_ChecksByExpression(t *testing.T) {
	want := NewTable("products")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "price", Type: "numeric"})
	want.AddCheck("", "price > 0")

	have := NewTable("products")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "price", Type: "numeric"})
	// The server stores the expression parenthesized and case-folded.
	have.AddCheck("CHK_products_5c3a9f01", "(price > 0)")

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.Empty(t, diff.addChecks)
	require.Empty(t, diff.dropChecks)
}

func TestDiffTables_ExclusionsByExpression(t *testing.T) {
	want := NewTable("reservations")
	want.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	want.AddColumn(&Column{Name: "during", Type: "tstzrange"})
	want.AddExclusion("", "USING gist (during WITH &&)")

	have := NewTable("reservations")
	have.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true})
	have.AddColumn(&Column{Name: "during", Type: "tstzrange"})

	diff, err := diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.False(t, diff.empty())
	require.Len(t, diff.addExclusions, 1)
	require.Empty(t, diff.dropExclusions)

	// The catalog reports the same constraint with cosmetic whitespace.
	have.AddExclusion("XCL_reservations_1b2c3d4e", "USING gist (during  WITH  &&)")
	diff, err = diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.Empty(t, diff.addExclusions)
	require.Empty(t, diff.dropExclusions)

	// A stale constraint on the inspected side is reported for dropping.
	want.Exclusions = nil
	diff, err = diffTables(NewPostgres(), want, have)
	require.NoError(t, err)
	require.Empty(t, diff.addExclusions)
	require.Len(t, diff.dropExclusions, 1)
}

func TestNormalizeExpr(t *testing.T) {
	require.Equal(t, "price > 0", normalizeExpr("((price > 0))"))
	require.Equal(t, "price > 0", normalizeExpr("  price  >  0 "))
	require.Equal(t, "(a > 0) and (b > 0)", normalizeExpr("(A > 0) AND (B > 0)"))
	// Outer parens stripped only when balanced.
	require.Equal(t, "(a) and (b)", normalizeExpr("(a) AND (b)"))
}

func TestChangeKind_Is(t *testing.T) {
	k := ChangeType | ChangeDefault
	require.True(t, k.Is(ChangeType))
	require.True(t, k.Is(ChangeDefault))
	require.False(t, k.Is(ChangeNullability))
	require.True(t, NoChange.Is(NoChange))
	require.False(t, k.Is(NoChange))
}

func TestPlan_DownQueriesReversed(t *testing.T) {
	p := &Plan{Changes: []*Change{
		{
			Up:   []Query{{Stmt: "u1"}, {Stmt: "u2"}},
			Down: []Query{{Stmt: "d1"}, {Stmt: "d2"}},
		},
		{
			Up:   []Query{{Stmt: "u3"}},
			Down: []Query{{Stmt: "d3"}},
		},
	}}
	up := p.UpQueries()
	require.Equal(t, []string{"u1", "u2", "u3"}, stmts(up))
	down := p.DownQueries()
	// Changes undone last-first, statements within a change reversed.
	require.Equal(t, []string{"d3", "d2", "d1"}, stmts(down))
}

func TestPlan_Empty(t *testing.T) {
	p := &Plan{}
	require.True(t, p.Empty())
	p.Changes = append(p.Changes, &Change{Comment: "noop"})
	require.True(t, p.Empty())
	p.Changes = append(p.Changes, &Change{Up: []Query{{Stmt: "CREATE TABLE t (id int)"}}})
	require.False(t, p.Empty())
}

func stmts(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Stmt
	}
	return out
}
