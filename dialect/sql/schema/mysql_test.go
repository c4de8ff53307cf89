package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/strata"
)

func TestMySQL_TypeSQL(t *testing.T) {
	d := NewMySQL()
	for _, tt := range []struct {
		col  *Column
		want string
	}{
		{&Column{Name: "a", Type: "varchar"}, "varchar(255)"},
		{&Column{Name: "b", Type: "bool"}, "tinyint(1)"},
		{&Column{Name: "c", Type: "integer"}, "int(11)"},
		{&Column{Name: "d", Type: "bigint", Length: "20"}, "bigint(20)"},
		{&Column{Name: "e", Type: "text"}, "text"},
		{&Column{Name: "f", Type: "enum", Enums: []string{"on", "off"}}, "enum('on', 'off')"},
	} {
		got, err := d.typeSQL(tt.col)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.col.Name)
	}
}

func TestMySQL_NormalizeDefault(t *testing.T) {
	d := NewMySQL()
	require.Equal(t, "active", d.normalizeDefault("'active'"))
	require.Equal(t, "active", d.normalizeDefault("active"))
	require.Equal(t, "current_timestamp", d.normalizeDefault("CURRENT_TIMESTAMP"))
	require.Equal(t, "current_timestamp", d.normalizeDefault("CURRENT_TIMESTAMP()"))
	require.Equal(t, "0", d.normalizeDefault("0"))
}

func TestMySQL_CreateTable(t *testing.T) {
	d := NewMySQL()
	tbl := NewTable("users").SetComment("registered users")
	tbl.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, Generated: GenerationIncrement})
	tbl.AddColumn(&Column{Name: "email", Type: "varchar", Unique: true})
	tbl.AddColumn(&Column{Name: "active", Type: "bool", Default: strptr("1")})

	changes, err := d.createTable(tbl)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	up := changes[0].Up[0].Stmt
	require.Contains(t, up, "CREATE TABLE `users` (")
	require.Contains(t, up, "`id` bigint(20) NOT NULL AUTO_INCREMENT")
	require.Contains(t, up, "PRIMARY KEY (`id`)")
	require.Contains(t, up, "UNIQUE KEY `UQ_users_email` (`email`)")
	require.Contains(t, up, "`active` tinyint(1) NOT NULL DEFAULT 1")
	require.Contains(t, up, "COMMENT = 'registered users'")
	require.Equal(t, "DROP TABLE `users`", changes[0].Down[0].Stmt)
}

func TestMySQL_ModifyColumnRedefines(t *testing.T) {
	d := NewMySQL()
	tbl := NewTable("users")
	from := &Column{Name: "name", Type: "varchar", Length: "255", Nullable: true}
	to := &Column{Name: "name", Type: "varchar", Length: "512", Default: strptr("'n/a'")}

	changes, err := d.modifyColumn(tbl, columnChange{kind: ChangeType | ChangeNullability | ChangeDefault, from: from, to: to})
	require.NoError(t, err)
	// One full redefinition covers type, nullability and default together.
	require.Len(t, changes, 1)
	require.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `name` varchar(512) NOT NULL DEFAULT 'n/a'", changes[0].Up[0].Stmt)
	require.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `name` varchar(255)", changes[0].Down[0].Stmt)
}

func TestMySQL_ModifyColumnUniqueIsIndexWork(t *testing.T) {
	d := NewMySQL()
	tbl := NewTable("users")
	from := &Column{Name: "email", Type: "varchar"}
	to := &Column{Name: "email", Type: "varchar", Unique: true}

	changes, err := d.modifyColumn(tbl, columnChange{kind: ChangeUnique, from: from, to: to})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "CREATE UNIQUE INDEX `UQ_users_email` ON `users` (`email`)", changes[0].Up[0].Stmt)
	require.Equal(t, "DROP INDEX `UQ_users_email` ON `users`", changes[0].Down[0].Stmt)
}

func TestMySQL_DeferredForeignKeyUnsupported(t *testing.T) {
	d := NewMySQL()
	_, err := d.addForeignKey(NewTable("posts"), &ForeignKey{
		Columns: []string{"author_id"}, RefTable: "users", RefColumns: []string{"id"},
		Deferrable: "INITIALLY DEFERRED",
	})
	require.Error(t, err)
	require.True(t, strata.IsUnsupported(err))
}

func TestMySQL_RenamePrimaryKeyUnsupported(t *testing.T) {
	d := NewMySQL()
	_, err := d.renameConstraint(NewTable("users"), "PRIMARY", "PK_users_id")
	require.True(t, strata.IsUnsupported(err))
}

func TestMySQL_ExclusionUnsupported(t *testing.T) {
	d := NewMySQL()
	tbl := NewTable("reservations")
	_, err := d.addExclusion(tbl, &Exclusion{Expression: "USING gist (during WITH &&)"})
	require.True(t, strata.IsUnsupported(err))
	_, err = d.dropExclusion(tbl, &Exclusion{Name: "no_overlap"})
	require.True(t, strata.IsUnsupported(err))
}

func TestMySQL_SpatialIndex(t *testing.T) {
	d := NewMySQL()
	ch := d.addIndex(NewTable("places"), &Index{Name: "IDX_places_geom", Columns: []string{"geom"}, Spatial: true})
	require.Equal(t, "CREATE SPATIAL INDEX `IDX_places_geom` ON `places` (`geom`)", ch.Up[0].Stmt)
}

func TestMySQL_MaterializedViewUnsupported(t *testing.T) {
	d := NewMySQL()
	_, err := d.createView(&View{Name: "v", Definition: "SELECT 1", Materialized: true})
	require.True(t, strata.IsUnsupported(err))
}

func TestMySQL_UUIDStoredAsChar(t *testing.T) {
	d := NewMySQL()
	ddl, err := d.columnDDL(&Column{Name: "id", Type: "uuid", Primary: true, Generated: GenerationUUID})
	require.NoError(t, err)
	require.Equal(t, "`id` char(36) NOT NULL", ddl)
}

func TestMySQL_QuoteEscapesBackticks(t *testing.T) {
	d := NewMySQL()
	require.Equal(t, "`weird``name`", d.quote("weird`name"))
}

func TestParseEnumMembers(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, parseEnumMembers("enum('a','b','c')"))
	require.Equal(t, []string{"it's", "ok"}, parseEnumMembers("enum('it''s','ok')"))
	require.Nil(t, parseEnumMembers("varchar(255)"))
}

func TestParseDisplayWidth(t *testing.T) {
	require.Equal(t, "11", parseDisplayWidth("int(11)"))
	require.Equal(t, "20", parseDisplayWidth("bigint(20) unsigned"))
	require.Equal(t, "", parseDisplayWidth("text"))
	require.Equal(t, "", parseDisplayWidth("decimal(10,2)"))
}
