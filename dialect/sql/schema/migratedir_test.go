package schema

import (
	"context"
	"testing"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/sqltool"
	"github.com/stretchr/testify/require"
)

func TestNamedDiff_RequiresDir(t *testing.T) {
	b := newTestBuilder(NewPostgres())
	err := b.NamedDiff(context.Background(), "init")
	require.EqualError(t, err, "schema: no migration directory given")
}

func TestFormatterInference(t *testing.T) {
	dir := t.TempDir()
	golangMigrate, err := sqltool.NewGolangMigrateDir(dir)
	require.NoError(t, err)
	goose, err := sqltool.NewGooseDir(dir)
	require.NoError(t, err)
	dbmate, err := sqltool.NewDBMateDir(dir)
	require.NoError(t, err)
	flyway, err := sqltool.NewFlywayDir(dir)
	require.NoError(t, err)
	liquibase, err := sqltool.NewLiquibaseDir(dir)
	require.NoError(t, err)
	local, err := migrate.NewLocalDir(dir)
	require.NoError(t, err)

	tests := []struct {
		name string
		dir  migrate.Dir
		want migrate.Formatter
	}{
		{"golang-migrate", golangMigrate, sqltool.GolangMigrateFormatter},
		{"goose", goose, sqltool.GooseFormatter},
		{"dbmate", dbmate, sqltool.DBMateFormatter},
		{"flyway", flyway, sqltool.FlywayFormatter},
		{"liquibase", liquibase, sqltool.LiquibaseFormatter},
		{"local", local, migrate.DefaultFormatter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(NewPostgres(), WithDir(tt.dir))
			require.Equal(t, tt.want, b.formatter())
		})
	}
}

func TestFormatterInference_ExplicitWins(t *testing.T) {
	dir := t.TempDir()
	goose, err := sqltool.NewGooseDir(dir)
	require.NoError(t, err)
	b := newTestBuilder(NewPostgres(), WithDir(goose), WithFormatter(sqltool.DBMateFormatter))
	require.Equal(t, sqltool.DBMateFormatter, b.formatter())
}
