package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataTable_Model(t *testing.T) {
	tbl := metadataTable(DefaultMetadataTable)
	require.Equal(t, "strata_metadata", tbl.Name)
	require.Len(t, tbl.PrimaryKey(), 1)

	id, ok := tbl.Column("id")
	require.True(t, ok)
	require.Equal(t, GenerationIncrement, id.Generated)

	typ, ok := tbl.Column("type")
	require.True(t, ok)
	require.False(t, typ.Nullable)

	for _, name := range []string{"database", "schema", "table", "name", "value"} {
		c, ok := tbl.Column(name)
		require.True(t, ok, name)
		require.True(t, c.Nullable, name)
	}

	require.False(t, ValidateTable(tbl).HasErrors())
}

func TestMetadataInsert_Postgres(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	row := metadataRow{
		typ: MetadataGeneratedColumn, database: "app", schema: "public",
		table: "users", name: "full_name", value: "first || ' ' || last",
	}
	ch := b.metadataInsert(row)
	require.Len(t, ch.Up, 1)
	require.Equal(t,
		`INSERT INTO "strata_metadata" ("type", "database", "schema", "table", "name", "value") VALUES ($1, $2, $3, $4, $5, $6)`,
		ch.Up[0].Stmt)
	require.Equal(t,
		[]any{"GENERATED_COLUMN", "app", "public", "users", "full_name", "first || ' ' || last"},
		ch.Up[0].Args)
	require.Len(t, ch.Down, 1)
	require.Equal(t,
		`DELETE FROM "strata_metadata" WHERE "type" = $1 AND "database" = $2 AND "schema" = $3 AND "table" = $4 AND "name" = $5`,
		ch.Down[0].Stmt)
	require.Equal(t, []any{"GENERATED_COLUMN", "app", "public", "users", "full_name"}, ch.Down[0].Args)
}

func TestMetadataDelete_Irreversible(t *testing.T) {
	b := newTestBuilder(NewMySQL())
	ch := b.metadataDelete(metadataRow{typ: MetadataView, database: "app", schema: "", name: "active_users"})
	require.Len(t, ch.Up, 1)
	require.Equal(t,
		"DELETE FROM `strata_metadata` WHERE `type` = ? AND `database` = ? AND `schema` = ? AND `table` = ? AND `name` = ?",
		ch.Up[0].Stmt)
	require.Equal(t, []any{"VIEW", "app", "", "", "active_users"}, ch.Up[0].Args)
	require.Empty(t, ch.Down)
}

func TestStringValue(t *testing.T) {
	require.Equal(t, "x", stringValue("x"))
	require.Equal(t, "x", stringValue([]byte("x")))
	require.Equal(t, "", stringValue(nil))
	require.Equal(t, "42", stringValue(int64(42)))
}
