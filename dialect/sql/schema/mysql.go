package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
)

// MySQL dialect. DDL is not transactional here, so builds are applied
// best-effort statement by statement; a failed build leaves the statements
// before the failure in place.
type MySQL struct {
	naming Naming
}

// NewMySQL returns the MySQL dialect.
func NewMySQL() *MySQL {
	return &MySQL{naming: NewNaming(mysqlCaps.MaxIdentifierLen)}
}

func (d *MySQL) name() string      { return dialect.MySQL }
func (d *MySQL) cap() Capabilities { return mysqlCaps }

func (d *MySQL) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *MySQL) literal(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func (d *MySQL) placeholder(int) string { return "?" }

func (d *MySQL) tablePath(t *Table) string {
	if t.Schema != "" {
		return d.quote(t.Schema) + "." + d.quote(t.Name)
	}
	return d.quote(t.Name)
}

func (d *MySQL) viewPath(v *View) string {
	if v.Schema != "" {
		return d.quote(v.Schema) + "." + d.quote(v.Name)
	}
	return d.quote(v.Name)
}

var mysqlTypeAliases = map[string]string{
	"integer": "int",
	"bool":    "tinyint",
	"boolean": "tinyint",
	"numeric": "decimal",
	"real":    "double",
}

func (d *MySQL) typeSQL(c *Column) (string, error) {
	if c.Computed() {
		return strings.ToLower(c.Type), nil
	}
	if len(c.Enums) > 0 {
		return fmt.Sprintf("enum(%s)", literalList(c.Enums)), nil
	}
	cc := c.Clone()
	t := strings.ToLower(c.Type)
	if alias, ok := mysqlTypeAliases[t]; ok {
		if (t == "bool" || t == "boolean") && cc.Length == "" {
			cc.Length = "1"
		}
		t = alias
	}
	cc.Type = t
	return renderType(mysqlCaps, cc)
}

// normalizeDefault reduces a default to a comparable form. The catalog
// reports literal defaults without quotes and keyword defaults in the case
// the server prefers; quotes are stripped and keyword defaults case-folded,
// while literal content stays verbatim.
func (d *MySQL) normalizeDefault(v string) string {
	s := strings.TrimSpace(v)
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "(") || strings.HasPrefix(lower, "current_timestamp") {
		return strings.TrimSuffix(lower, "()")
	}
	return s
}

func (d *MySQL) defaultEqual(want, have *Column) bool {
	if want.HasDefault() != have.HasDefault() {
		return false
	}
	if !want.HasDefault() {
		return true
	}
	return d.normalizeDefault(*want.Default) == d.normalizeDefault(*have.Default)
}

// Introspection. MySQL has no schema level below the database, so schema
// arguments resolve against DATABASE().

func (d *MySQL) currentDatabase(ctx context.Context, r *QueryRunner) (string, error) {
	return d.scalar(ctx, r, "SELECT DATABASE()")
}

func (d *MySQL) currentSchema(ctx context.Context, r *QueryRunner) (string, error) {
	return d.currentDatabase(ctx, r)
}

func (d *MySQL) scalar(ctx context.Context, r *QueryRunner, stmt string, args ...any) (string, error) {
	res, err := r.Query(ctx, stmt, args...)
	if err != nil {
		return "", err
	}
	if len(res.Records) == 0 {
		return "", nil
	}
	for _, v := range res.Records[0] {
		return stringValue(v), nil
	}
	return "", nil
}

func (d *MySQL) exists(ctx context.Context, r *QueryRunner, stmt string, args ...any) (bool, error) {
	res, err := r.Query(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	return len(res.Records) > 0, nil
}

func (d *MySQL) hasDatabase(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.exists(ctx, r, "SELECT 1 FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?", name)
}

func (d *MySQL) hasSchema(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.hasDatabase(ctx, r, name)
}

func (d *MySQL) hasTable(ctx context.Context, r *QueryRunner, schema, table string) (bool, error) {
	return d.exists(ctx, r,
		"SELECT 1 FROM information_schema.TABLES WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'",
		schema, table)
}

func (d *MySQL) hasColumn(ctx context.Context, r *QueryRunner, schema, table, column string) (bool, error) {
	return d.exists(ctx, r,
		"SELECT 1 FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? AND COLUMN_NAME = ?",
		schema, table, column)
}

// args builds (IN-list SQL, args) for a name filter prefixed by the schema.
func mysqlNameFilter(schema string, names []string) (string, []any) {
	args := make([]any, 0, len(names)+1)
	args = append(args, schema)
	if len(names) == 0 {
		return "", args
	}
	holders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	for _, n := range names {
		args = append(args, n)
	}
	return holders, args
}

func (d *MySQL) tables(ctx context.Context, r *QueryRunner, names []string) ([]*Table, error) {
	groups := map[string][]string{}
	order := make([]string, 0, len(names))
	for _, n := range names {
		schema, table := qualify(n)
		if _, ok := groups[schema]; !ok {
			order = append(order, schema)
		}
		groups[schema] = append(groups[schema], table)
	}
	if len(names) == 0 {
		order = []string{""}
		groups[""] = nil
	}
	var out []*Table
	for _, schema := range order {
		ts, err := d.tablesIn(ctx, r, schema, groups[schema])
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

func (d *MySQL) tablesIn(ctx context.Context, r *QueryRunner, schema string, names []string) ([]*Table, error) {
	stmt := "SELECT TABLE_NAME, TABLE_COMMENT FROM information_schema.TABLES WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND TABLE_TYPE = 'BASE TABLE'"
	holders, args := mysqlNameFilter(schema, names)
	if holders != "" {
		stmt += " AND TABLE_NAME IN (" + holders + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY TABLE_NAME", args...)
	if err != nil {
		return nil, err
	}
	var (
		tables []*Table
		byName = map[string]*Table{}
	)
	for _, rec := range res.Records {
		t := NewTable(stringValue(rec["TABLE_NAME"]))
		t.Schema = schema
		t.Comment = stringValue(rec["TABLE_COMMENT"])
		tables = append(tables, t)
		byName[t.Name] = t
	}
	if len(tables) == 0 {
		return nil, nil
	}
	loaded := make([]string, 0, len(tables))
	for _, t := range tables {
		loaded = append(loaded, t.Name)
	}
	if err := d.loadColumns(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadIndexes(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadForeignKeys(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadChecks(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	return tables, nil
}

func (d *MySQL) loadColumns(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	stmt := `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
 CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, COLUMN_KEY, EXTRA,
 CHARACTER_SET_NAME, COLLATION_NAME, COLUMN_COMMENT, GENERATION_EXPRESSION
 FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE())`
	holders, args := mysqlNameFilter(schema, names)
	if holders != "" {
		stmt += " AND TABLE_NAME IN (" + holders + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY TABLE_NAME, ORDINAL_POSITION", args...)
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		t, ok := byName[stringValue(rec["TABLE_NAME"])]
		if !ok {
			continue
		}
		c := &Column{
			Name:      stringValue(rec["COLUMN_NAME"]),
			Type:      strings.ToLower(stringValue(rec["DATA_TYPE"])),
			Nullable:  boolValue(rec["IS_NULLABLE"]),
			Charset:   stringValue(rec["CHARACTER_SET_NAME"]),
			Collation: stringValue(rec["COLLATION_NAME"]),
			Comment:   stringValue(rec["COLUMN_COMMENT"]),
		}
		colType := strings.ToLower(stringValue(rec["COLUMN_TYPE"]))
		switch c.Type {
		case "enum", "set":
			c.Enums = parseEnumMembers(colType)
		default:
			if n, ok := intValue(rec["CHARACTER_MAXIMUM_LENGTH"]); ok {
				c.Length = strconv.Itoa(n)
			} else if l := parseDisplayWidth(colType); l != "" {
				c.Length = l
			}
			if c.Type == "decimal" || c.Type == "numeric" {
				if p, ok := intValue(rec["NUMERIC_PRECISION"]); ok {
					c.Precision = &p
				}
				if s, ok := intValue(rec["NUMERIC_SCALE"]); ok {
					c.Scale = &s
				}
			}
		}
		extra := strings.ToLower(stringValue(rec["EXTRA"]))
		if strings.Contains(extra, "auto_increment") {
			c.Generated = GenerationIncrement
		}
		switch {
		case strings.Contains(extra, "stored generated"):
			c.GeneratedAs = stringValue(rec["GENERATION_EXPRESSION"])
			c.GeneratedType = GeneratedStored
		case strings.Contains(extra, "virtual generated"):
			c.GeneratedAs = stringValue(rec["GENERATION_EXPRESSION"])
			c.GeneratedType = GeneratedVirtual
		}
		if raw := stringValue(rec["COLUMN_DEFAULT"]); raw != "" && c.Generated != GenerationIncrement {
			if err := c.ScanDefault(raw); err != nil {
				return err
			}
		}
		if stringValue(rec["COLUMN_KEY"]) == "PRI" {
			c.Primary = true
			c.Nullable = false
		}
		t.AddColumn(c)
	}
	return nil
}

// parseEnumMembers extracts the member list from a COLUMN_TYPE such as
// enum('a','b').
func parseEnumMembers(colType string) []string {
	open := strings.IndexByte(colType, '(')
	end := strings.LastIndexByte(colType, ')')
	if open < 0 || end <= open {
		return nil
	}
	var (
		members []string
		cur     strings.Builder
		inQuote bool
	)
	body := colType[open+1 : end]
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\'' && inQuote && i+1 < len(body) && body[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case ch == '\'':
			if inQuote {
				members = append(members, cur.String())
				cur.Reset()
			}
			inQuote = !inQuote
		case inQuote:
			cur.WriteByte(ch)
		}
	}
	return members
}

// parseDisplayWidth extracts the integer display width from a COLUMN_TYPE
// such as int(11) or bigint(20) unsigned.
func parseDisplayWidth(colType string) string {
	open := strings.IndexByte(colType, '(')
	end := strings.IndexByte(colType, ')')
	if open < 0 || end <= open {
		return ""
	}
	w := colType[open+1 : end]
	if _, err := strconv.Atoi(w); err != nil {
		return ""
	}
	return w
}

func (d *MySQL) loadIndexes(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	stmt := `SELECT TABLE_NAME, INDEX_NAME, NON_UNIQUE, COLUMN_NAME
 FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE())`
	holders, args := mysqlNameFilter(schema, names)
	if holders != "" {
		stmt += " AND TABLE_NAME IN (" + holders + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY INDEX_NAME, SEQ_IN_INDEX", args...)
	if err != nil {
		return err
	}
	type key struct{ table, index string }
	type entry struct {
		unique  bool
		columns []string
	}
	idxs := map[key]*entry{}
	var order []key
	for _, rec := range res.Records {
		name := stringValue(rec["INDEX_NAME"])
		if name == "PRIMARY" {
			continue
		}
		k := key{stringValue(rec["TABLE_NAME"]), name}
		e, ok := idxs[k]
		if !ok {
			e = &entry{unique: !boolValue(rec["NON_UNIQUE"])}
			idxs[k] = e
			order = append(order, k)
		}
		e.columns = append(e.columns, stringValue(rec["COLUMN_NAME"]))
	}
	for _, k := range order {
		t, ok := byName[k.table]
		if !ok {
			continue
		}
		e := idxs[k]
		switch {
		case e.unique && len(e.columns) == 1 && k.index == d.naming.UniqueName(t.Name, e.columns[0]):
			if c, ok := t.Column(e.columns[0]); ok {
				c.Unique = true
			}
		case e.unique && strings.HasPrefix(k.index, "UQ_"):
			t.Uniques = append(t.Uniques, &Unique{Name: k.index, Columns: e.columns})
		default:
			t.Indexes = append(t.Indexes, &Index{Name: k.index, Unique: e.unique, Columns: e.columns})
		}
	}
	return nil
}

func (d *MySQL) loadForeignKeys(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	stmt := `SELECT kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME,
 kcu.REFERENCED_TABLE_SCHEMA, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME,
 rc.UPDATE_RULE, rc.DELETE_RULE
 FROM information_schema.KEY_COLUMN_USAGE kcu
 JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
   ON rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
 WHERE kcu.TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`
	holders, args := mysqlNameFilter(schema, names)
	if holders != "" {
		stmt += " AND kcu.TABLE_NAME IN (" + holders + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION", args...)
	if err != nil {
		return err
	}
	fks := map[string]*ForeignKey{}
	owner := map[string]*Table{}
	var order []string
	for _, rec := range res.Records {
		name := stringValue(rec["CONSTRAINT_NAME"])
		t, ok := byName[stringValue(rec["TABLE_NAME"])]
		if !ok {
			continue
		}
		fk, ok := fks[name]
		if !ok {
			refSchema := stringValue(rec["REFERENCED_TABLE_SCHEMA"])
			if refSchema == schema || schema == "" {
				refSchema = ""
			}
			fk = &ForeignKey{
				Name:      name,
				RefSchema: refSchema,
				RefTable:  stringValue(rec["REFERENCED_TABLE_NAME"]),
				OnUpdate:  ReferenceOption(stringValue(rec["UPDATE_RULE"])),
				OnDelete:  ReferenceOption(stringValue(rec["DELETE_RULE"])),
			}
			fks[name] = fk
			owner[name] = t
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, stringValue(rec["COLUMN_NAME"]))
		fk.RefColumns = append(fk.RefColumns, stringValue(rec["REFERENCED_COLUMN_NAME"]))
	}
	for _, name := range order {
		owner[name].AddForeignKey(fks[name])
	}
	return nil
}

func (d *MySQL) loadChecks(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	stmt := `SELECT tc.TABLE_NAME, cc.CONSTRAINT_NAME, cc.CHECK_CLAUSE
 FROM information_schema.CHECK_CONSTRAINTS cc
 JOIN information_schema.TABLE_CONSTRAINTS tc
   ON tc.CONSTRAINT_SCHEMA = cc.CONSTRAINT_SCHEMA AND tc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
 WHERE tc.TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE()) AND tc.CONSTRAINT_TYPE = 'CHECK'`
	holders, args := mysqlNameFilter(schema, names)
	if holders != "" {
		stmt += " AND tc.TABLE_NAME IN (" + holders + ")"
	}
	res, err := r.Query(ctx, stmt+" ORDER BY cc.CONSTRAINT_NAME", args...)
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		t, ok := byName[stringValue(rec["TABLE_NAME"])]
		if !ok {
			continue
		}
		t.Checks = append(t.Checks, &Check{
			Name:       stringValue(rec["CONSTRAINT_NAME"]),
			Expression: stringValue(rec["CHECK_CLAUSE"]),
		})
	}
	return nil
}

func (d *MySQL) views(ctx context.Context, r *QueryRunner, names []string) ([]*View, error) {
	groups := map[string][]string{}
	order := make([]string, 0, len(names))
	for _, n := range names {
		schema, view := qualify(n)
		if _, ok := groups[schema]; !ok {
			order = append(order, schema)
		}
		groups[schema] = append(groups[schema], view)
	}
	if len(names) == 0 {
		order = []string{""}
		groups[""] = nil
	}
	var out []*View
	for _, schema := range order {
		stmt := "SELECT TABLE_NAME, VIEW_DEFINITION FROM information_schema.VIEWS WHERE TABLE_SCHEMA = IFNULL(NULLIF(?, ''), DATABASE())"
		holders, args := mysqlNameFilter(schema, groups[schema])
		if holders != "" {
			stmt += " AND TABLE_NAME IN (" + holders + ")"
		}
		res, err := r.Query(ctx, stmt+" ORDER BY TABLE_NAME", args...)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			out = append(out, &View{
				Schema:     schema,
				Name:       stringValue(rec["TABLE_NAME"]),
				Definition: stringValue(rec["VIEW_DEFINITION"]),
			})
		}
	}
	return out, nil
}

// DDL generation.

func (d *MySQL) createTable(t *Table) ([]*Change, error) {
	parts := make([]string, 0, len(t.Columns)+4)
	for _, c := range t.Columns {
		ddl, err := d.columnDDL(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ddl)
	}
	if pk := t.PrimaryKey(); len(pk) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d.quote, names(pk))))
	}
	for _, c := range t.Columns {
		if c.Unique && !c.Primary {
			parts = append(parts, fmt.Sprintf("UNIQUE KEY %s (%s)",
				d.quote(d.naming.UniqueName(t.Name, c.Name)), d.quote(c.Name)))
		}
	}
	for _, u := range t.Uniques {
		name := u.Name
		if name == "" {
			name = d.naming.UniqueName(t.Name, u.Columns...)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE KEY %s (%s)", d.quote(name), quoteList(d.quote, u.Columns)))
	}
	for _, c := range t.Checks {
		name := c.Name
		if name == "" {
			name = d.naming.CheckName(t.Name, c.Expression)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s CHECK (%s)", d.quote(name), c.Expression))
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", d.tablePath(t), strings.Join(parts, ", "))
	if t.Comment != "" {
		stmt += " COMMENT = " + d.literal(t.Comment)
	}
	return []*Change{{
		Comment: fmt.Sprintf("create %q table", t.Name),
		Up:      []Query{{Stmt: stmt}},
		Down:    []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}}, nil
}

func (d *MySQL) dropTable(t *Table) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop %q table", t.Name),
		Up:      []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}
}

func (d *MySQL) renameTable(t *Table, to string) *Change {
	renamed := *t
	renamed.Name = to
	return &Change{
		Comment: fmt.Sprintf("rename table %q to %q", t.Name, to),
		Up:      []Query{{Stmt: fmt.Sprintf("RENAME TABLE %s TO %s", d.tablePath(t), d.tablePath(&renamed))}},
		Down:    []Query{{Stmt: fmt.Sprintf("RENAME TABLE %s TO %s", d.tablePath(&renamed), d.tablePath(t))}},
	}
}

func (d *MySQL) columnDDL(c *Column) (string, error) {
	typ, err := d.columnType(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if c.Charset != "" {
		b.WriteString(" CHARACTER SET ")
		b.WriteString(c.Charset)
	}
	if c.Collation != "" {
		b.WriteString(" COLLATE ")
		b.WriteString(c.Collation)
	}
	if c.Computed() {
		kind := c.GeneratedType
		if kind == "" {
			kind = GeneratedVirtual
		}
		fmt.Fprintf(&b, " GENERATED ALWAYS AS (%s) %s", c.GeneratedAs, kind)
	}
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.HasDefault() {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	if c.Generated == GenerationIncrement {
		b.WriteString(" AUTO_INCREMENT")
	}
	if c.Comment != "" {
		b.WriteString(" COMMENT ")
		b.WriteString(d.literal(c.Comment))
	}
	return b.String(), nil
}

func (d *MySQL) columnType(c *Column) (string, error) {
	if len(c.Enums) > 0 {
		return fmt.Sprintf("enum(%s)", literalList(c.Enums)), nil
	}
	if c.Generated == GenerationUUID {
		// No native UUID type; stored as char(36) with an app-side default.
		return "char(36)", nil
	}
	return d.typeSQL(c)
}

func (d *MySQL) addColumn(t *Table, c *Column) (*Change, error) {
	ddl, err := d.columnDDL(c)
	if err != nil {
		return nil, err
	}
	return &Change{
		Comment: fmt.Sprintf("add column %q to %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}, nil
}

func (d *MySQL) dropColumn(t *Table, c *Column) *Change {
	ch := &Change{
		Comment: fmt.Sprintf("drop column %q from %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}
	if ddl, err := d.columnDDL(c); err == nil {
		ch.Down = []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}}
	}
	return ch
}

func (d *MySQL) renameColumn(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename column %q to %q in %q table", from, to, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(to), d.quote(from))}},
	}, nil
}

// modifyColumn redefines the whole column with MODIFY COLUMN; the engine
// cannot alter type, nullability or default independently. Uniqueness is
// index work and handled separately.
func (d *MySQL) modifyColumn(t *Table, ch columnChange) ([]*Change, error) {
	var changes []*Change
	if ch.kind&^ChangeUnique != NoChange {
		to, err := d.columnDDL(ch.to)
		if err != nil {
			return nil, err
		}
		from, err := d.columnDDL(ch.from)
		if err != nil {
			return nil, err
		}
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("modify column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.tablePath(t), to)}},
			Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.tablePath(t), from)}},
		})
	}
	if ch.kind.Is(ChangeUnique) {
		name := d.quote(d.naming.UniqueName(t.Name, ch.to.Name))
		add := Query{Stmt: fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", name, d.tablePath(t), d.quote(ch.to.Name))}
		drop := Query{Stmt: fmt.Sprintf("DROP INDEX %s ON %s", name, d.tablePath(t))}
		up, down := add, drop
		if !ch.to.Unique {
			up, down = drop, add
		}
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("change uniqueness of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{up},
			Down:    []Query{down},
		})
	}
	return changes, nil
}

func (d *MySQL) addIndex(t *Table, idx *Index) *Change {
	name := idx.Name
	if name == "" {
		name = d.naming.IndexName(t.Name, idx.Columns...)
	}
	kind := ""
	switch {
	case idx.Unique:
		kind = "UNIQUE "
	case idx.Spatial:
		kind = "SPATIAL "
	}
	return &Change{
		Comment: fmt.Sprintf("create index %q on %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", kind, d.quote(name), d.tablePath(t), quoteList(d.quote, idx.Columns))}},
		Down:    []Query{{Stmt: fmt.Sprintf("DROP INDEX %s ON %s", d.quote(name), d.tablePath(t))}},
	}
}

func (d *MySQL) dropIndex(t *Table, idx *Index) *Change {
	add := d.addIndex(t, idx)
	return &Change{
		Comment: fmt.Sprintf("drop index %q from %q table", idx.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("DROP INDEX %s ON %s", d.quote(idx.Name), d.tablePath(t))}},
		Down:    add.Up,
	}
}

func (d *MySQL) renameIndex(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename index %q to %q on %q table", from, to, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s", d.tablePath(t), d.quote(from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s", d.tablePath(t), d.quote(to), d.quote(from))}},
	}, nil
}

func (d *MySQL) addUnique(t *Table, u *Unique) (*Change, error) {
	name := u.Name
	if name == "" {
		name = d.naming.UniqueName(t.Name, u.Columns...)
	}
	return &Change{
		Comment: fmt.Sprintf("add unique constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.tablePath(t), d.quote(name), quoteList(d.quote, u.Columns))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *MySQL) dropUnique(t *Table, u *Unique) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop unique constraint %q from %q table", u.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", d.tablePath(t), d.quote(u.Name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.tablePath(t), d.quote(u.Name), quoteList(d.quote, u.Columns))}},
	}
}

func (d *MySQL) addCheck(t *Table, c *Check) (*Change, error) {
	name := c.Name
	if name == "" {
		name = d.naming.CheckName(t.Name, c.Expression)
	}
	return &Change{
		Comment: fmt.Sprintf("add check constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", d.tablePath(t), d.quote(name), c.Expression)}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *MySQL) dropCheck(t *Table, c *Check) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("drop check constraint %q from %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CHECK %s", d.tablePath(t), d.quote(c.Name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", d.tablePath(t), d.quote(c.Name), c.Expression)}},
	}, nil
}

func (d *MySQL) addExclusion(*Table, *Exclusion) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.MySQL, "exclusion constraints")
}

func (d *MySQL) dropExclusion(*Table, *Exclusion) (*Change, error) {
	return nil, strata.NewUnsupportedError(dialect.MySQL, "exclusion constraints")
}

func (d *MySQL) addForeignKey(t *Table, fk *ForeignKey) (*Change, error) {
	if fk.Deferrable != "" {
		return nil, strata.NewUnsupportedError(dialect.MySQL, "deferrable foreign keys")
	}
	name := fk.Name
	if name == "" {
		name = d.naming.ForeignKeyName(t.Name, fk.Columns...)
	}
	ref := d.quote(fk.RefTable)
	if fk.RefSchema != "" {
		ref = d.quote(fk.RefSchema) + "." + ref
	}
	return &Change{
		Comment: fmt.Sprintf("add foreign key %q to %q table", name, t.Name),
		Up: []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
			d.tablePath(t), d.quote(name), quoteList(d.quote, fk.Columns), ref, quoteList(d.quote, fk.RefColumns), fkActions(fk))}},
		Down: []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *MySQL) dropForeignKey(t *Table, fk *ForeignKey) (*Change, error) {
	ch := &Change{
		Comment: fmt.Sprintf("drop foreign key %q from %q table", fk.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.tablePath(t), d.quote(fk.Name))}},
	}
	if add, err := d.addForeignKey(t, fk); err == nil {
		ch.Down = add.Up
	}
	return ch, nil
}

// renameConstraint covers the constraint kinds that are index-backed here;
// foreign keys and checks have no in-place rename.
func (d *MySQL) renameConstraint(t *Table, from, to string) (*Change, error) {
	if from == "PRIMARY" || to == "PRIMARY" {
		return nil, strata.NewUnsupportedError(dialect.MySQL, "renaming the primary key")
	}
	return d.renameIndex(t, from, to)
}

func (d *MySQL) tableComment(t *Table, comment string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("comment %q table", t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s COMMENT = %s", d.tablePath(t), d.literal(comment))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s COMMENT = ''", d.tablePath(t))}},
	}, nil
}

func (d *MySQL) createView(v *View) (*Change, error) {
	if v.Materialized {
		return nil, strata.NewUnsupportedError(dialect.MySQL, "materialized views")
	}
	return &Change{
		Comment: fmt.Sprintf("create view %q", v.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE VIEW %s AS %s", d.viewPath(v), v.Definition)}},
		Down:    []Query{{Stmt: "DROP VIEW " + d.viewPath(v)}},
	}, nil
}

func (d *MySQL) dropView(v *View) *Change {
	ch := &Change{
		Comment: fmt.Sprintf("drop view %q", v.Name),
		Up:      []Query{{Stmt: "DROP VIEW " + d.viewPath(v)}},
	}
	if v.Definition != "" {
		ch.Down = []Query{{Stmt: fmt.Sprintf("CREATE VIEW %s AS %s", d.viewPath(v), v.Definition)}}
	}
	return ch
}
