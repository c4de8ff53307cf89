package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
)

// SQLite dialect. ALTER TABLE covers renames and column add/drop only;
// everything else would need a table rebuild, which this engine does not
// perform. Such operations surface an unsupported-feature error instead of
// failing halfway through a rebuild.
type SQLite struct {
	naming Naming
}

// NewSQLite returns the SQLite dialect.
func NewSQLite() *SQLite {
	return &SQLite{naming: NewNaming(sqliteCaps.MaxIdentifierLen)}
}

func (d *SQLite) name() string      { return dialect.SQLite }
func (d *SQLite) cap() Capabilities { return sqliteCaps }

func (d *SQLite) inlineForeignKeys() bool { return true }

func (d *SQLite) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *SQLite) placeholder(int) string { return "?" }

func (d *SQLite) tablePath(t *Table) string { return d.quote(t.Name) }

var sqliteTypeAliases = map[string]string{
	"int":     "integer",
	"bigint":  "integer",
	"double":  "real",
	"float":   "real",
	"boolean": "bool",
	"varchar": "text",
	"char":    "text",
	"clob":    "text",
	"uuid":    "text",
}

// typeSQL folds types into SQLite's affinity classes, so a column declared
// varchar compares equal to the text the engine actually stores.
func (d *SQLite) typeSQL(c *Column) (string, error) {
	if c.Computed() {
		return strings.ToLower(c.Type), nil
	}
	t := strings.ToLower(c.Type)
	if alias, ok := sqliteTypeAliases[t]; ok {
		t = alias
	}
	if t == "" {
		return "", fmt.Errorf("schema: column %q has no type", c.Name)
	}
	return t, nil
}

func (d *SQLite) defaultEqual(want, have *Column) bool {
	if want.HasDefault() != have.HasDefault() {
		return false
	}
	if !want.HasDefault() {
		return true
	}
	norm := func(s string) string {
		s = strings.TrimSpace(s)
		for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balanced(s[1:len(s)-1]) {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		if strings.HasPrefix(s, "'") {
			return s
		}
		return strings.ToLower(s)
	}
	return norm(*want.Default) == norm(*have.Default)
}

// Introspection. SQLite has a single ambient database named main; schema
// arguments other than main or empty report absence.

func (d *SQLite) currentDatabase(context.Context, *QueryRunner) (string, error) {
	return "main", nil
}

func (d *SQLite) currentSchema(context.Context, *QueryRunner) (string, error) {
	return "main", nil
}

func (d *SQLite) hasDatabase(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	res, err := r.Query(ctx, "PRAGMA database_list")
	if err != nil {
		return false, err
	}
	for _, rec := range res.Records {
		if stringValue(rec["name"]) == name {
			return true, nil
		}
	}
	return false, nil
}

func (d *SQLite) hasSchema(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.hasDatabase(ctx, r, name)
}

func (d *SQLite) hasTable(ctx context.Context, r *QueryRunner, schema, table string) (bool, error) {
	if schema != "" && schema != "main" {
		return false, nil
	}
	res, err := r.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, err
	}
	return len(res.Records) > 0, nil
}

func (d *SQLite) hasColumn(ctx context.Context, r *QueryRunner, schema, table, column string) (bool, error) {
	if schema != "" && schema != "main" {
		return false, nil
	}
	res, err := r.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.quote(table)))
	if err != nil {
		return false, err
	}
	for _, rec := range res.Records {
		if stringValue(rec["name"]) == column {
			return true, nil
		}
	}
	return false, nil
}

// tables loads the requested tables. The pragma interface is per-table, so
// unlike the information_schema dialects this walks one table at a time.
func (d *SQLite) tables(ctx context.Context, r *QueryRunner, names []string) ([]*Table, error) {
	stmt := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	args := make([]any, 0, len(names))
	plain := make([]string, 0, len(names))
	for _, n := range names {
		_, table := qualify(n)
		plain = append(plain, table)
		args = append(args, table)
	}
	if len(plain) > 0 {
		stmt += " AND name IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(plain)), ", ") + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	var tables []*Table
	for _, rec := range res.Records {
		t := NewTable(stringValue(rec["name"]))
		if err := d.loadTable(ctx, r, t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (d *SQLite) loadTable(ctx context.Context, r *QueryRunner, t *Table) error {
	res, err := r.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.quote(t.Name)))
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		c := &Column{
			Name:     stringValue(rec["name"]),
			Type:     strings.ToLower(stringValue(rec["type"])),
			Nullable: !boolValue(rec["notnull"]),
		}
		if pk, ok := intValue(rec["pk"]); ok && pk > 0 {
			c.Primary = true
			c.Nullable = false
			if c.Type == "integer" {
				// INTEGER PRIMARY KEY is the rowid alias and auto-increments.
				c.Generated = GenerationIncrement
			}
		}
		if raw := stringValue(rec["dflt_value"]); raw != "" {
			if err := c.ScanDefault(raw); err != nil {
				return err
			}
		}
		t.AddColumn(c)
	}
	if err := d.loadTableIndexes(ctx, r, t); err != nil {
		return err
	}
	return d.loadTableForeignKeys(ctx, r, t)
}

func (d *SQLite) loadTableIndexes(ctx context.Context, r *QueryRunner, t *Table) error {
	res, err := r.Query(ctx, fmt.Sprintf("PRAGMA index_list(%s)", d.quote(t.Name)))
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		name := stringValue(rec["name"])
		// Skip the implicit indexes backing inline UNIQUE and PK clauses.
		if strings.HasPrefix(name, "sqlite_autoindex_") {
			continue
		}
		unique := boolValue(rec["unique"])
		info, err := r.Query(ctx, fmt.Sprintf("PRAGMA index_info(%s)", d.quote(name)))
		if err != nil {
			return err
		}
		var cols []string
		for _, irec := range info.Records {
			cols = append(cols, stringValue(irec["name"]))
		}
		switch {
		case unique && len(cols) == 1 && name == d.naming.UniqueName(t.Name, cols[0]):
			if c, ok := t.Column(cols[0]); ok {
				c.Unique = true
			}
		case unique && strings.HasPrefix(name, "UQ_"):
			t.Uniques = append(t.Uniques, &Unique{Name: name, Columns: cols})
		default:
			t.Indexes = append(t.Indexes, &Index{Name: name, Unique: unique, Columns: cols})
		}
	}
	return nil
}

func (d *SQLite) loadTableForeignKeys(ctx context.Context, r *QueryRunner, t *Table) error {
	res, err := r.Query(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", d.quote(t.Name)))
	if err != nil {
		return err
	}
	byID := map[string]*ForeignKey{}
	var order []string
	for _, rec := range res.Records {
		id := stringValue(rec["id"])
		fk, ok := byID[id]
		if !ok {
			fk = &ForeignKey{
				RefTable: stringValue(rec["table"]),
				OnUpdate: ReferenceOption(stringValue(rec["on_update"])),
				OnDelete: ReferenceOption(stringValue(rec["on_delete"])),
			}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, stringValue(rec["from"]))
		fk.RefColumns = append(fk.RefColumns, stringValue(rec["to"]))
	}
	for _, id := range order {
		fk := byID[id]
		// The pragma does not expose constraint names; derive the default.
		fk.Name = d.naming.ForeignKeyName(t.Name, fk.Columns...)
		t.AddForeignKey(fk)
	}
	return nil
}

func (d *SQLite) views(ctx context.Context, r *QueryRunner, names []string) ([]*View, error) {
	stmt := "SELECT name, sql FROM sqlite_master WHERE type = 'view'"
	args := make([]any, 0, len(names))
	if len(names) > 0 {
		holders := make([]string, 0, len(names))
		for _, n := range names {
			_, view := qualify(n)
			holders = append(holders, "?")
			args = append(args, view)
		}
		stmt += " AND name IN (" + strings.Join(holders, ", ") + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	var out []*View
	for _, rec := range res.Records {
		v := &View{Name: stringValue(rec["name"])}
		// sqlite_master stores the original CREATE VIEW text.
		if sql := stringValue(rec["sql"]); sql != "" {
			if i := strings.Index(strings.ToUpper(sql), " AS "); i > 0 {
				v.Definition = strings.TrimSpace(sql[i+4:])
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// DDL generation.

func (d *SQLite) createTable(t *Table) ([]*Change, error) {
	parts := make([]string, 0, len(t.Columns)+4)
	for _, c := range t.Columns {
		ddl, err := d.columnDDL(t, c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ddl)
	}
	if pk := t.PrimaryKey(); len(pk) > 1 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d.quote, names(pk))))
	}
	for _, u := range t.Uniques {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", quoteList(d.quote, u.Columns)))
	}
	for _, c := range t.Checks {
		parts = append(parts, fmt.Sprintf("CHECK (%s)", c.Expression))
	}
	for _, fk := range t.ForeignKeys {
		parts = append(parts, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)%s",
			quoteList(d.quote, fk.Columns), d.quote(fk.RefTable), quoteList(d.quote, fk.RefColumns), fkActions(fk)))
	}
	return []*Change{{
		Comment: fmt.Sprintf("create %q table", t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE TABLE %s (%s)", d.tablePath(t), strings.Join(parts, ", "))}},
		Down:    []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}}, nil
}

func (d *SQLite) columnDDL(t *Table, c *Column) (string, error) {
	typ, err := d.typeSQL(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if c.Primary && len(t.PrimaryKey()) == 1 {
		b.WriteString(" PRIMARY KEY")
		if c.Generated == GenerationIncrement && typ == "integer" {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.Computed() {
		kind := c.GeneratedType
		if kind == "" {
			kind = GeneratedVirtual
		}
		fmt.Fprintf(&b, " GENERATED ALWAYS AS (%s) %s", c.GeneratedAs, kind)
	}
	if !c.Nullable && !c.Primary {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.Primary {
		b.WriteString(" UNIQUE")
	}
	if c.HasDefault() {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String(), nil
}

func (d *SQLite) dropTable(t *Table) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop %q table", t.Name),
		Up:      []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}
}

func (d *SQLite) renameTable(t *Table, to string) *Change {
	return &Change{
		Comment: fmt.Sprintf("rename table %q to %q", t.Name, to),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.quote(t.Name), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.quote(to), d.quote(t.Name))}},
	}
}

func (d *SQLite) addColumn(t *Table, c *Column) (*Change, error) {
	ddl, err := d.columnDDL(t, c)
	if err != nil {
		return nil, err
	}
	return &Change{
		Comment: fmt.Sprintf("add column %q to %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}, nil
}

func (d *SQLite) dropColumn(t *Table, c *Column) *Change {
	ch := &Change{
		Comment: fmt.Sprintf("drop column %q from %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}
	if ddl, err := d.columnDDL(t, c); err == nil {
		ch.Down = []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}}
	}
	return ch
}

func (d *SQLite) renameColumn(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename column %q to %q in %q table", from, to, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(to), d.quote(from))}},
	}, nil
}

func (d *SQLite) modifyColumn(t *Table, ch columnChange) ([]*Change, error) {
	// Uniqueness lives in an index and needs no ALTER.
	if ch.kind == ChangeUnique {
		name := d.quote(d.naming.UniqueName(t.Name, ch.to.Name))
		add := Query{Stmt: fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", name, d.tablePath(t), d.quote(ch.to.Name))}
		drop := Query{Stmt: "DROP INDEX " + name}
		up, down := add, drop
		if !ch.to.Unique {
			up, down = drop, add
		}
		return []*Change{{
			Comment: fmt.Sprintf("change uniqueness of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{up},
			Down:    []Query{down},
		}}, nil
	}
	return nil, strata.NewUnsupportedError(dialect.SQLite, "altering column definitions")
}

func (d *SQLite) addIndex(t *Table, idx *Index) *Change {
	name := idx.Name
	if name == "" {
		name = d.naming.IndexName(t.Name, idx.Columns...)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.quote(name), d.tablePath(t), quoteList(d.quote, idx.Columns))
	if idx.Where != "" {
		stmt += " WHERE " + idx.Where
	}
	return &Change{
		Comment: fmt.Sprintf("create index %q on %q table", name, t.Name),
		Up:      []Query{{Stmt: stmt}},
		Down:    []Query{{Stmt: "DROP INDEX " + d.quote(name)}},
	}
}

func (d *SQLite) dropIndex(t *Table, idx *Index) *Change {
	add := d.addIndex(t, idx)
	return &Change{
		Comment: fmt.Sprintf("drop index %q from %q table", idx.Name, t.Name),
		Up:      []Query{{Stmt: "DROP INDEX " + d.quote(idx.Name)}},
		Down:    add.Up,
	}
}

func (d *SQLite) renameIndex(t *Table, from, to string) (*Change, error) {
	idx, ok := t.Index(to)
	if !ok {
		idx, ok = t.Index(from)
	}
	if !ok {
		return nil, strata.NewNotFoundErrorInTable("index", from, t.Name)
	}
	// No ALTER INDEX; recreate under the new name.
	renamed := idx.Clone()
	renamed.Name = to
	old := idx.Clone()
	old.Name = from
	add := d.addIndex(t, renamed)
	drop := d.dropIndex(t, old)
	return &Change{
		Comment: fmt.Sprintf("rename index %q to %q", from, to),
		Up:      append(drop.Up, add.Up...),
		Down:    append(add.Down, drop.Down...),
	}, nil
}

func (d *SQLite) addUnique(t *Table, u *Unique) (*Change, error) {
	name := u.Name
	if name == "" {
		name = d.naming.UniqueName(t.Name, u.Columns...)
	}
	return &Change{
		Comment: fmt.Sprintf("add unique constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", d.quote(name), d.tablePath(t), quoteList(d.quote, u.Columns))}},
		Down:    []Query{{Stmt: "DROP INDEX " + d.quote(name)}},
	}, nil
}

func (d *SQLite) dropUnique(t *Table, u *Unique) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop unique constraint %q from %q table", u.Name, t.Name),
		Up:      []Query{{Stmt: "DROP INDEX " + d.quote(u.Name)}},
		Down:    []Query{{Stmt: fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", d.quote(u.Name), d.tablePath(t), quoteList(d.quote, u.Columns))}},
	}
}

func (d *SQLite) addCheck(*Table, *Check) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "adding check constraints to existing tables")
}

func (d *SQLite) dropCheck(*Table, *Check) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "dropping check constraints")
}

func (d *SQLite) addExclusion(*Table, *Exclusion) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "exclusion constraints")
}

func (d *SQLite) dropExclusion(*Table, *Exclusion) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "exclusion constraints")
}

func (d *SQLite) addForeignKey(*Table, *ForeignKey) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "adding foreign keys to existing tables")
}

func (d *SQLite) dropForeignKey(*Table, *ForeignKey) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "dropping foreign keys")
}

func (d *SQLite) renameConstraint(*Table, string, string) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "renaming constraints")
}

func (d *SQLite) tableComment(*Table, string) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.SQLite, "table comments")
}

func (d *SQLite) createView(v *View) (*Change, error) {
	if v.Materialized {
		return nil, strata.NewUnsupportedError(dialect.SQLite, "materialized views")
	}
	return &Change{
		Comment: fmt.Sprintf("create view %q", v.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE VIEW %s AS %s", d.quote(v.Name), v.Definition)}},
		Down:    []Query{{Stmt: "DROP VIEW " + d.quote(v.Name)}},
	}, nil
}

func (d *SQLite) dropView(v *View) *Change {
	ch := &Change{
		Comment: fmt.Sprintf("drop view %q", v.Name),
		Up:      []Query{{Stmt: "DROP VIEW " + d.quote(v.Name)}},
	}
	if v.Definition != "" {
		ch.Down = []Query{{Stmt: fmt.Sprintf("CREATE VIEW %s AS %s", d.quote(v.Name), v.Definition)}}
	}
	return ch
}
