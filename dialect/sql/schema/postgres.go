package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/strata/dialect"
)

// Postgres is the canonical dialect: typed enums, deferrable foreign keys,
// exclusion constraints, materialized views and transactional DDL are all
// native here.
type Postgres struct {
	naming Naming
}

// NewPostgres returns the Postgres dialect.
func NewPostgres() *Postgres {
	return &Postgres{naming: NewNaming(postgresCaps.MaxIdentifierLen)}
}

func (d *Postgres) name() string      { return dialect.Postgres }
func (d *Postgres) cap() Capabilities { return postgresCaps }

func (d *Postgres) quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (d *Postgres) literal(v string) string { return pq.QuoteLiteral(v) }

func (d *Postgres) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d *Postgres) tablePath(t *Table) string {
	if t.Schema != "" {
		return d.quote(t.Schema) + "." + d.quote(t.Name)
	}
	return d.quote(t.Name)
}

func (d *Postgres) viewPath(v *View) string {
	if v.Schema != "" {
		return d.quote(v.Schema) + "." + d.quote(v.Name)
	}
	return d.quote(v.Name)
}

// pgTypeAliases maps the short spellings to the canonical names the catalog
// reports, so declared and introspected columns compare equal.
var pgTypeAliases = map[string]string{
	"varchar":     "character varying",
	"char":        "character",
	"int":         "integer",
	"int2":        "smallint",
	"int4":        "integer",
	"int8":        "bigint",
	"float4":      "real",
	"float8":      "double precision",
	"decimal":     "numeric",
	"bool":        "boolean",
	"timestamptz": "timestamp with time zone",
	"timestamp":   "timestamp without time zone",
	"timetz":      "time with time zone",
	"time":        "time without time zone",
	"varbit":      "bit varying",
	"serial":      "integer",
	"smallserial": "smallint",
	"bigserial":   "bigint",
}

func (d *Postgres) typeSQL(c *Column) (string, error) {
	if c.Computed() {
		// The server derives computed-column types from the expression.
		return strings.ToLower(c.Type), nil
	}
	if len(c.Enums) > 0 || c.EnumName != "" {
		if c.EnumName != "" {
			return c.EnumName, nil
		}
		return strings.ToLower(c.Type), nil
	}
	cc := c.Clone()
	t := strings.ToLower(c.Type)
	if alias, ok := pgTypeAliases[t]; ok {
		t = alias
	}
	cc.Type = t
	return renderType(postgresCaps, cc)
}

// normalizeDefault reduces a default expression to a comparable form: the
// server wraps defaults in casts and parentheses and case-folds keywords.
// Quoted literal halves are kept verbatim; everything else is case-folded.
func (d *Postgres) normalizeDefault(v string) string {
	s := strings.TrimSpace(v)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balanced(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "'") {
		// 'literal'::type — keep the literal half verbatim, drop the cast.
		if end := strings.LastIndex(s, "'"); end > 0 {
			if rest := s[end+1:]; rest == "" || strings.HasPrefix(rest, "::") {
				return s[:end+1]
			}
		}
		return s
	}
	if i := strings.Index(s, "::"); i > 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

func (d *Postgres) defaultEqual(want, have *Column) bool {
	if want.HasDefault() != have.HasDefault() {
		return false
	}
	if !want.HasDefault() {
		return true
	}
	return d.normalizeDefault(*want.Default) == d.normalizeDefault(*have.Default)
}

// Introspection.

func (d *Postgres) currentDatabase(ctx context.Context, r *QueryRunner) (string, error) {
	return d.scalar(ctx, r, "SELECT current_database()")
}

func (d *Postgres) currentSchema(ctx context.Context, r *QueryRunner) (string, error) {
	return d.scalar(ctx, r, "SELECT current_schema()")
}

func (d *Postgres) scalar(ctx context.Context, r *QueryRunner, stmt string, args ...any) (string, error) {
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

func (d *Postgres) exists(ctx context.Context, r *QueryRunner, stmt string, args ...any) (bool, error) {
	res, err := r.Query(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	return len(res.Records) > 0, nil
}

func (d *Postgres) hasDatabase(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.exists(ctx, r, "SELECT 1 FROM pg_database WHERE datname = $1", name)
}

func (d *Postgres) hasSchema(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.exists(ctx, r, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", name)
}

func (d *Postgres) hasTable(ctx context.Context, r *QueryRunner, schema, table string) (bool, error) {
	return d.exists(ctx, r,
		"SELECT 1 FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2 AND table_type = 'BASE TABLE'",
		schema, table)
}

func (d *Postgres) hasColumn(ctx context.Context, r *QueryRunner, schema, table, column string) (bool, error) {
	return d.exists(ctx, r,
		"SELECT 1 FROM information_schema.columns WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2 AND column_name = $3",
		schema, table, column)
}

func (d *Postgres) hasEnum(ctx context.Context, r *QueryRunner, name string) (bool, error) {
	return d.exists(ctx, r, "SELECT 1 FROM pg_type WHERE typname = $1 AND typtype = 'e'", name)
}

// tables loads the full graph of the requested tables with one catalog
// round-trip per object kind: tables, columns, enum members, key
// constraints, checks, exclusions, foreign keys and indexes.
func (d *Postgres) tables(ctx context.Context, r *QueryRunner, names []string) ([]*Table, error) {
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

func (d *Postgres) tablesIn(ctx context.Context, r *QueryRunner, schema string, names []string) ([]*Table, error) {
	res, err := r.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_type = 'BASE TABLE' AND ($2 OR table_name = ANY($3)) ORDER BY table_name",
		schema, len(names) == 0, pq.Array(names))
	if err != nil {
		return nil, err
	}
	var (
		tables []*Table
		byName = map[string]*Table{}
	)
	for _, rec := range res.Records {
		t := NewTable(stringValue(rec["table_name"]))
		t.Schema = schema
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
	if err := d.loadEnums(ctx, r, byName); err != nil {
		return nil, err
	}
	if err := d.loadKeyConstraints(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadChecks(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadExclusions(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadForeignKeys(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	if err := d.loadIndexes(ctx, r, schema, loaded, byName); err != nil {
		return nil, err
	}
	return tables, nil
}

func (d *Postgres) loadColumns(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT table_name, column_name, data_type, udt_name, is_nullable, column_default,
 character_maximum_length, numeric_precision, numeric_scale, datetime_precision,
 is_identity, is_generated, generation_expression, collation_name
 FROM information_schema.columns
 WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = ANY($2)
 ORDER BY table_name, ordinal_position`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		t, ok := byName[stringValue(rec["table_name"])]
		if !ok {
			continue
		}
		c := &Column{
			Name:      stringValue(rec["column_name"]),
			Type:      strings.ToLower(stringValue(rec["data_type"])),
			Nullable:  boolValue(rec["is_nullable"]),
			Collation: stringValue(rec["collation_name"]),
		}
		if c.Type == "user-defined" {
			c.Type = stringValue(rec["udt_name"])
			c.EnumName = c.Type
		}
		if n, ok := intValue(rec["character_maximum_length"]); ok {
			c.Length = strconv.Itoa(n)
		}
		switch c.Type {
		case "numeric", "decimal":
			if p, ok := intValue(rec["numeric_precision"]); ok {
				c.Precision = &p
			}
			if s, ok := intValue(rec["numeric_scale"]); ok {
				c.Scale = &s
			}
		}
		if boolValue(rec["is_identity"]) {
			c.Generated = GenerationIdentity
		}
		if boolValue(rec["is_generated"]) {
			c.GeneratedAs = stringValue(rec["generation_expression"])
			c.GeneratedType = GeneratedStored
		}
		raw := stringValue(rec["column_default"])
		switch {
		case strings.HasPrefix(raw, "nextval("):
			c.Generated = GenerationIncrement
		case raw != "":
			if err := c.ScanDefault(raw); err != nil {
				return err
			}
		}
		t.AddColumn(c)
	}
	return nil
}

// loadEnums fills the member sets of every enum-typed column in one query.
func (d *Postgres) loadEnums(ctx context.Context, r *QueryRunner, byName map[string]*Table) error {
	var typeNames []string
	seen := map[string]bool{}
	for _, t := range byName {
		for _, c := range t.Columns {
			if c.EnumName != "" && !seen[c.EnumName] {
				seen[c.EnumName] = true
				typeNames = append(typeNames, c.EnumName)
			}
		}
	}
	if len(typeNames) == 0 {
		return nil
	}
	res, err := r.Query(ctx, `SELECT t.typname, e.enumlabel FROM pg_type t
 JOIN pg_enum e ON e.enumtypid = t.oid
 WHERE t.typname = ANY($1) ORDER BY t.typname, e.enumsortorder`, pq.Array(typeNames))
	if err != nil {
		return err
	}
	members := map[string][]string{}
	for _, rec := range res.Records {
		name := stringValue(rec["typname"])
		members[name] = append(members[name], stringValue(rec["enumlabel"]))
	}
	for _, t := range byName {
		for _, c := range t.Columns {
			if c.EnumName != "" {
				c.Enums = members[c.EnumName]
			}
		}
	}
	return nil
}

func (d *Postgres) loadKeyConstraints(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT tc.table_name, tc.constraint_name, tc.constraint_type, kcu.column_name
 FROM information_schema.table_constraints tc
 JOIN information_schema.key_column_usage kcu
   ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name
 WHERE tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
   AND tc.table_name = ANY($2) AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
 ORDER BY tc.constraint_name, kcu.ordinal_position`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	type key struct {
		table, name, typ string
	}
	cols := map[key][]string{}
	var order []key
	for _, rec := range res.Records {
		k := key{stringValue(rec["table_name"]), stringValue(rec["constraint_name"]), stringValue(rec["constraint_type"])}
		if _, ok := cols[k]; !ok {
			order = append(order, k)
		}
		cols[k] = append(cols[k], stringValue(rec["column_name"]))
	}
	for _, k := range order {
		t, ok := byName[k.table]
		if !ok {
			continue
		}
		switch k.typ {
		case "PRIMARY KEY":
			t.PKName = k.name
			for _, name := range cols[k] {
				if c, ok := t.Column(name); ok {
					c.Primary = true
					c.Nullable = false
				}
			}
		case "UNIQUE":
			// A single-column constraint carrying the derived default name
			// folds back into the column's unique flag.
			members := cols[k]
			if len(members) == 1 && k.name == d.naming.UniqueName(t.Name, members[0]) {
				if c, ok := t.Column(members[0]); ok {
					c.Unique = true
					continue
				}
			}
			t.Uniques = append(t.Uniques, &Unique{Name: k.name, Columns: members})
		}
	}
	return nil
}

func (d *Postgres) loadChecks(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT rel.relname AS table_name, con.conname, pg_get_expr(con.conbin, con.conrelid) AS expression
 FROM pg_constraint con
 JOIN pg_class rel ON rel.oid = con.conrelid
 JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
 WHERE con.contype = 'c' AND nsp.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND rel.relname = ANY($2)
 ORDER BY con.conname`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		t, ok := byName[stringValue(rec["table_name"])]
		if !ok {
			continue
		}
		t.Checks = append(t.Checks, &Check{
			Name:       stringValue(rec["conname"]),
			Expression: stringValue(rec["expression"]),
		})
	}
	return nil
}

// loadExclusions reconstructs exclusion constraints from their catalog
// definition, which the server stores as "EXCLUDE USING <method> (...)".
func (d *Postgres) loadExclusions(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT rel.relname AS table_name, con.conname, pg_get_constraintdef(con.oid) AS definition
 FROM pg_constraint con
 JOIN pg_class rel ON rel.oid = con.conrelid
 JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
 WHERE con.contype = 'x' AND nsp.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND rel.relname = ANY($2)
 ORDER BY con.conname`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		t, ok := byName[stringValue(rec["table_name"])]
		if !ok {
			continue
		}
		expr := strings.TrimSpace(stringValue(rec["definition"]))
		if rest, ok := strings.CutPrefix(expr, "EXCLUDE "); ok {
			expr = rest
		}
		t.Exclusions = append(t.Exclusions, &Exclusion{
			Name:       stringValue(rec["conname"]),
			Expression: expr,
		})
	}
	return nil
}

func (d *Postgres) loadForeignKeys(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT tc.table_name, tc.constraint_name, kcu.column_name,
 ccu.table_schema AS ref_schema, ccu.table_name AS ref_table, ccu.column_name AS ref_column,
 rc.update_rule, rc.delete_rule
 FROM information_schema.table_constraints tc
 JOIN information_schema.key_column_usage kcu
   ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name
 JOIN information_schema.constraint_column_usage ccu
   ON ccu.constraint_schema = tc.constraint_schema AND ccu.constraint_name = tc.constraint_name
 JOIN information_schema.referential_constraints rc
   ON rc.constraint_schema = tc.constraint_schema AND rc.constraint_name = tc.constraint_name
 WHERE tc.table_schema = COALESCE(NULLIF($1, ''), current_schema())
   AND tc.table_name = ANY($2) AND tc.constraint_type = 'FOREIGN KEY'
 ORDER BY tc.constraint_name, kcu.ordinal_position`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	fks := map[string]*ForeignKey{}
	owner := map[string]*Table{}
	var order []string
	for _, rec := range res.Records {
		name := stringValue(rec["constraint_name"])
		t, ok := byName[stringValue(rec["table_name"])]
		if !ok {
			continue
		}
		fk, ok := fks[name]
		if !ok {
			refSchema := stringValue(rec["ref_schema"])
			if refSchema == schema || schema == "" {
				refSchema = ""
			}
			fk = &ForeignKey{
				Name:      name,
				RefSchema: refSchema,
				RefTable:  stringValue(rec["ref_table"]),
				OnUpdate:  ReferenceOption(stringValue(rec["update_rule"])),
				OnDelete:  ReferenceOption(stringValue(rec["delete_rule"])),
			}
			fks[name] = fk
			owner[name] = t
			order = append(order, name)
		}
		col := stringValue(rec["column_name"])
		if indexOf(fk.Columns, col) < 0 {
			fk.Columns = append(fk.Columns, col)
		}
		ref := stringValue(rec["ref_column"])
		if indexOf(fk.RefColumns, ref) < 0 {
			fk.RefColumns = append(fk.RefColumns, ref)
		}
	}
	for _, name := range order {
		owner[name].AddForeignKey(fks[name])
	}
	return nil
}

// loadIndexes loads secondary indexes, excluding those backing constraints.
func (d *Postgres) loadIndexes(ctx context.Context, r *QueryRunner, schema string, names []string, byName map[string]*Table) error {
	res, err := r.Query(ctx, `SELECT t.relname AS table_name, i.relname AS index_name, ix.indisunique,
 a.attname, pg_get_expr(ix.indpred, ix.indrelid) AS predicate
 FROM pg_index ix
 JOIN pg_class t ON t.oid = ix.indrelid
 JOIN pg_class i ON i.oid = ix.indexrelid
 JOIN pg_namespace n ON n.oid = t.relnamespace
 JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
 WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND t.relname = ANY($2)
   AND NOT ix.indisprimary
   AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = i.oid)
 ORDER BY i.relname, array_position(ix.indkey, a.attnum)`, schema, pq.Array(names))
	if err != nil {
		return err
	}
	idxs := map[string]*Index{}
	owner := map[string]*Table{}
	var order []string
	for _, rec := range res.Records {
		name := stringValue(rec["index_name"])
		t, ok := byName[stringValue(rec["table_name"])]
		if !ok {
			continue
		}
		idx, ok := idxs[name]
		if !ok {
			idx = &Index{
				Name:   name,
				Unique: boolValue(rec["indisunique"]),
				Where:  stringValue(rec["predicate"]),
			}
			idxs[name] = idx
			owner[name] = t
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, stringValue(rec["attname"]))
	}
	for _, name := range order {
		owner[name].Indexes = append(owner[name].Indexes, idxs[name])
	}
	return nil
}

func (d *Postgres) views(ctx context.Context, r *QueryRunner, names []string) ([]*View, error) {
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
		vnames := groups[schema]
		res, err := r.Query(ctx,
			"SELECT table_name AS view_name, view_definition AS definition, false AS materialized FROM information_schema.views WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND ($2 OR table_name = ANY($3)) UNION ALL SELECT matviewname, definition, true FROM pg_matviews WHERE schemaname = COALESCE(NULLIF($1, ''), current_schema()) AND ($2 OR matviewname = ANY($3)) ORDER BY view_name",
			schema, len(vnames) == 0, pq.Array(vnames))
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			out = append(out, &View{
				Schema:       schema,
				Name:         stringValue(rec["view_name"]),
				Definition:   stringValue(rec["definition"]),
				Materialized: boolValue(rec["materialized"]),
			})
		}
	}
	return out, nil
}

// DDL generation.

func (d *Postgres) createTable(t *Table) ([]*Change, error) {
	parts := make([]string, 0, len(t.Columns)+4)
	for _, c := range t.Columns {
		ddl, err := d.columnDDL(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ddl)
	}
	if pk := t.PrimaryKey(); len(pk) > 0 {
		name := t.PKName
		if name == "" {
			name = d.naming.PrimaryKeyName(t.Name, names(pk)...)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", d.quote(name), quoteList(d.quote, names(pk))))
	}
	for _, c := range t.Columns {
		if c.Unique && !c.Primary {
			parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
				d.quote(d.naming.UniqueName(t.Name, c.Name)), d.quote(c.Name)))
		}
	}
	for _, u := range t.Uniques {
		name := u.Name
		if name == "" {
			name = d.naming.UniqueName(t.Name, u.Columns...)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", d.quote(name), quoteList(d.quote, u.Columns)))
	}
	for _, c := range t.Checks {
		name := c.Name
		if name == "" {
			name = d.naming.CheckName(t.Name, c.Expression)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s CHECK (%s)", d.quote(name), c.Expression))
	}
	for _, e := range t.Exclusions {
		name := e.Name
		if name == "" {
			name = d.naming.ExclusionName(t.Name, e.Expression)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s EXCLUDE %s", d.quote(name), e.Expression))
	}
	up := []Query{{Stmt: fmt.Sprintf("CREATE TABLE %s (%s)", d.tablePath(t), strings.Join(parts, ", "))}}
	for _, c := range t.Columns {
		if c.Comment != "" {
			up = append(up, Query{Stmt: fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", d.tablePath(t), d.quote(c.Name), d.literal(c.Comment))})
		}
	}
	return []*Change{{
		Comment: fmt.Sprintf("create %q table", t.Name),
		Up:      up,
		Down:    []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}}, nil
}

func (d *Postgres) dropTable(t *Table) *Change {
	// Dropped data cannot be reconstructed; the change has no down path.
	return &Change{
		Comment: fmt.Sprintf("drop %q table", t.Name),
		Up:      []Query{{Stmt: "DROP TABLE " + d.tablePath(t)}},
	}
}

func (d *Postgres) renameTable(t *Table, to string) *Change {
	renamed := *t
	renamed.Name = to
	return &Change{
		Comment: fmt.Sprintf("rename table %q to %q", t.Name, to),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tablePath(t), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.tablePath(&renamed), d.quote(t.Name))}},
	}
}

// columnDDL renders one column clause of CREATE TABLE / ADD COLUMN.
func (d *Postgres) columnDDL(c *Column) (string, error) {
	typ, err := d.columnType(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if c.Collation != "" {
		b.WriteString(" COLLATE ")
		b.WriteString(d.quote(c.Collation))
	}
	if c.Computed() {
		fmt.Fprintf(&b, " GENERATED ALWAYS AS (%s) STORED", c.GeneratedAs)
	}
	if c.Generated == GenerationIdentity {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if !c.Nullable && !c.Primary && c.Generated != GenerationIncrement {
		b.WriteString(" NOT NULL")
	}
	switch {
	case c.HasDefault():
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	case c.Generated == GenerationUUID:
		b.WriteString(" DEFAULT gen_random_uuid()")
	}
	return b.String(), nil
}

// columnType renders the DDL type, which differs from the comparison type
// for serial columns and enums.
func (d *Postgres) columnType(c *Column) (string, error) {
	if c.Generated == GenerationIncrement {
		switch strings.ToLower(c.Type) {
		case "smallint", "int2", "smallserial":
			return "smallserial", nil
		case "bigint", "int8", "bigserial":
			return "bigserial", nil
		default:
			return "serial", nil
		}
	}
	if len(c.Enums) > 0 || c.EnumName != "" {
		name := c.EnumName
		if name == "" {
			name = strings.ToLower(c.Type)
		}
		return d.quote(name), nil
	}
	return renderType(postgresCaps, c)
}

func (d *Postgres) addColumn(t *Table, c *Column) (*Change, error) {
	ddl, err := d.columnDDL(c)
	if err != nil {
		return nil, err
	}
	up := []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}}
	if c.Comment != "" {
		up = append(up, Query{Stmt: fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", d.tablePath(t), d.quote(c.Name), d.literal(c.Comment))})
	}
	return &Change{
		Comment: fmt.Sprintf("add column %q to %q table", c.Name, t.Name),
		Up:      up,
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}, nil
}

func (d *Postgres) dropColumn(t *Table, c *Column) *Change {
	ch := &Change{
		Comment: fmt.Sprintf("drop column %q from %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.tablePath(t), d.quote(c.Name))}},
	}
	if ddl, err := d.columnDDL(c); err == nil {
		// Structure is restorable on the down path; data is not.
		ch.Down = []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.tablePath(t), ddl)}}
	}
	return ch
}

func (d *Postgres) renameColumn(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename column %q to %q in %q table", from, to, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.tablePath(t), d.quote(to), d.quote(from))}},
	}, nil
}

// modifyColumn compiles one column deviation. Statement order within the
// change list is fixed: type, nullability, default, uniqueness, comment.
// Enum member changes expand to the multi-step type replacement.
func (d *Postgres) modifyColumn(t *Table, ch columnChange) ([]*Change, error) {
	if ch.kind.Is(ChangeEnum) {
		changes, err := d.alterEnum(t, ch)
		if err != nil {
			return nil, err
		}
		// The type replacement above already moves the column and reattaches
		// its default; compile whatever else changed alongside.
		rest := ch
		rest.kind &^= ChangeEnum | ChangeType | ChangeDefault
		if rest.kind != NoChange {
			more, err := d.modifyColumn(t, rest)
			if err != nil {
				return nil, err
			}
			changes = append(changes, more...)
		}
		return changes, nil
	}
	if ch.kind.Is(ChangeGenerated) {
		// Generation expressions cannot be altered in place.
		drop := d.dropColumn(t, ch.from)
		add, err := d.addColumn(t, ch.to)
		if err != nil {
			return nil, err
		}
		return []*Change{drop, add}, nil
	}
	path, col := d.tablePath(t), d.quote(ch.to.Name)
	var changes []*Change
	if ch.kind.Is(ChangeType) {
		to, err := d.typeSQL(ch.to)
		if err != nil {
			return nil, err
		}
		from, err := d.typeSQL(ch.from)
		if err != nil {
			return nil, err
		}
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("change type of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", path, col, to, col, to)}},
			Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", path, col, from, col, from)}},
		})
	}
	if ch.kind.Is(ChangeNullability) {
		up, down := "SET NOT NULL", "DROP NOT NULL"
		if ch.to.Nullable {
			up, down = down, up
		}
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("change nullability of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", path, col, up)}},
			Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", path, col, down)}},
		})
	}
	if ch.kind.Is(ChangeDefault) {
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("change default of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{{Stmt: d.defaultDDL(path, col, ch.to)}},
			Down:    []Query{{Stmt: d.defaultDDL(path, col, ch.from)}},
		})
	}
	if ch.kind.Is(ChangeUnique) {
		name := d.quote(d.naming.UniqueName(t.Name, ch.to.Name))
		add := Query{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", path, name, col)}
		drop := Query{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", path, name)}
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
	if ch.kind.Is(ChangeComment) {
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("change comment of column %q in %q table", ch.to.Name, t.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", path, col, d.literal(ch.to.Comment))}},
			Down:    []Query{{Stmt: fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", path, col, d.commentOrNull(ch.from))}},
		})
	}
	return changes, nil
}

func (d *Postgres) commentOrNull(c *Column) string {
	if c.Comment == "" {
		return "NULL"
	}
	return d.literal(c.Comment)
}

func (d *Postgres) defaultDDL(path, col string, c *Column) string {
	if c.HasDefault() {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", path, col, *c.Default)
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", path, col)
}

// alterEnum replaces the member set of a typed enum. The type behind a
// column cannot be edited in place, so the protocol renames the live type
// aside, creates the new one, moves the column over through a text cast and
// drops the old type. Every step is individually reversible, and the down
// path runs them mirrored in reverse order.
func (d *Postgres) alterEnum(t *Table, ch columnChange) ([]*Change, error) {
	name := ch.from.EnumName
	if name == "" {
		name = ch.to.EnumName
	}
	if name == "" {
		name = d.naming.EnumName(t.Name, ch.to.Name)
	}
	old := name + "_old"
	path, col := d.tablePath(t), d.quote(ch.to.Name)
	changes := []*Change{
		{
			Comment: fmt.Sprintf("rename enum type %q aside", name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TYPE %s RENAME TO %s", d.quote(name), d.quote(old))}},
			Down:    []Query{{Stmt: fmt.Sprintf("ALTER TYPE %s RENAME TO %s", d.quote(old), d.quote(name))}},
		},
		{
			Comment: fmt.Sprintf("create enum type %q with the new members", name),
			Up:      []Query{{Stmt: fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", d.quote(name), literalList(ch.to.Enums))}},
			Down:    []Query{{Stmt: "DROP TYPE " + d.quote(name)}},
		},
	}
	hasDefault := ch.from.HasDefault() || ch.to.HasDefault()
	if hasDefault {
		down := []Query{}
		if ch.from.HasDefault() {
			down = []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", path, col, *ch.from.Default)}}
		}
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("detach default of column %q during enum change", ch.to.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", path, col)}},
			Down:    down,
		})
	}
	changes = append(changes, &Change{
		Comment: fmt.Sprintf("move column %q to the new enum type", ch.to.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::text::%s", path, col, d.quote(name), col, d.quote(name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::text::%s", path, col, d.quote(old), col, d.quote(old))}},
	})
	if hasDefault && ch.to.HasDefault() {
		changes = append(changes, &Change{
			Comment: fmt.Sprintf("restore default of column %q after enum change", ch.to.Name),
			Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", path, col, *ch.to.Default)}},
			Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", path, col)}},
		})
	}
	changes = append(changes, &Change{
		Comment: fmt.Sprintf("drop retired enum type %q", old),
		Up:      []Query{{Stmt: "DROP TYPE " + d.quote(old)}},
		Down:    []Query{{Stmt: fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", d.quote(old), literalList(ch.from.Enums))}},
	})
	return changes, nil
}

func (d *Postgres) createEnum(name string, values []string) *Change {
	return &Change{
		Comment: fmt.Sprintf("create enum type %q", name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", d.quote(name), literalList(values))}},
		Down:    []Query{{Stmt: "DROP TYPE " + d.quote(name)}},
	}
}

func (d *Postgres) dropEnum(name string) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop enum type %q", name),
		Up:      []Query{{Stmt: "DROP TYPE " + d.quote(name)}},
	}
}

func (d *Postgres) addIndex(t *Table, idx *Index) *Change {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if idx.Concurrent {
		b.WriteString("CONCURRENTLY ")
	}
	name := idx.Name
	if name == "" {
		name = d.naming.IndexName(t.Name, idx.Columns...)
	}
	fmt.Fprintf(&b, "%s ON %s", d.quote(name), d.tablePath(t))
	if idx.Spatial {
		b.WriteString(" USING gist")
	}
	fmt.Fprintf(&b, " (%s)", quoteList(d.quote, idx.Columns))
	if idx.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(idx.Where)
	}
	return &Change{
		Comment: fmt.Sprintf("create index %q on %q table", name, t.Name),
		Up:      []Query{{Stmt: b.String()}},
		Down:    []Query{{Stmt: "DROP INDEX " + d.indexPath(t, name)}},
	}
}

func (d *Postgres) dropIndex(t *Table, idx *Index) *Change {
	down := d.addIndex(t, idx)
	return &Change{
		Comment: fmt.Sprintf("drop index %q from %q table", idx.Name, t.Name),
		Up:      []Query{{Stmt: "DROP INDEX " + d.indexPath(t, idx.Name)}},
		Down:    down.Up,
	}
}

func (d *Postgres) indexPath(t *Table, name string) string {
	if t.Schema != "" {
		return d.quote(t.Schema) + "." + d.quote(name)
	}
	return d.quote(name)
}

func (d *Postgres) renameIndex(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename index %q to %q", from, to),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER INDEX %s RENAME TO %s", d.indexPath(t, from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER INDEX %s RENAME TO %s", d.indexPath(t, to), d.quote(from))}},
	}, nil
}

func (d *Postgres) addUnique(t *Table, u *Unique) (*Change, error) {
	name := u.Name
	if name == "" {
		name = d.naming.UniqueName(t.Name, u.Columns...)
	}
	return &Change{
		Comment: fmt.Sprintf("add unique constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.tablePath(t), d.quote(name), quoteList(d.quote, u.Columns))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *Postgres) dropUnique(t *Table, u *Unique) *Change {
	return &Change{
		Comment: fmt.Sprintf("drop unique constraint %q from %q table", u.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(u.Name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", d.tablePath(t), d.quote(u.Name), quoteList(d.quote, u.Columns))}},
	}
}

func (d *Postgres) addCheck(t *Table, c *Check) (*Change, error) {
	name := c.Name
	if name == "" {
		name = d.naming.CheckName(t.Name, c.Expression)
	}
	return &Change{
		Comment: fmt.Sprintf("add check constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", d.tablePath(t), d.quote(name), c.Expression)}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *Postgres) dropCheck(t *Table, c *Check) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("drop check constraint %q from %q table", c.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(c.Name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", d.tablePath(t), d.quote(c.Name), c.Expression)}},
	}, nil
}

func (d *Postgres) addExclusion(t *Table, e *Exclusion) (*Change, error) {
	name := e.Name
	if name == "" {
		name = d.naming.ExclusionName(t.Name, e.Expression)
	}
	return &Change{
		Comment: fmt.Sprintf("add exclusion constraint %q to %q table", name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s EXCLUDE %s", d.tablePath(t), d.quote(name), e.Expression)}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *Postgres) dropExclusion(t *Table, e *Exclusion) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("drop exclusion constraint %q from %q table", e.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(e.Name))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s EXCLUDE %s", d.tablePath(t), d.quote(e.Name), e.Expression)}},
	}, nil
}

func (d *Postgres) addForeignKey(t *Table, fk *ForeignKey) (*Change, error) {
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
		Down: []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(name))}},
	}, nil
}

func (d *Postgres) dropForeignKey(t *Table, fk *ForeignKey) (*Change, error) {
	ch := &Change{
		Comment: fmt.Sprintf("drop foreign key %q from %q table", fk.Name, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.tablePath(t), d.quote(fk.Name))}},
	}
	if add, err := d.addForeignKey(t, fk); err == nil {
		ch.Down = add.Up
	}
	return ch, nil
}

func (d *Postgres) renameConstraint(t *Table, from, to string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("rename constraint %q to %q on %q table", from, to, t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s", d.tablePath(t), d.quote(from), d.quote(to))}},
		Down:    []Query{{Stmt: fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s", d.tablePath(t), d.quote(to), d.quote(from))}},
	}, nil
}

func (d *Postgres) tableComment(t *Table, comment string) (*Change, error) {
	return &Change{
		Comment: fmt.Sprintf("comment %q table", t.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("COMMENT ON TABLE %s IS %s", d.tablePath(t), d.literal(comment))}},
		Down:    []Query{{Stmt: fmt.Sprintf("COMMENT ON TABLE %s IS NULL", d.tablePath(t))}},
	}, nil
}

func (d *Postgres) createView(v *View) (*Change, error) {
	kind := "VIEW"
	if v.Materialized {
		kind = "MATERIALIZED VIEW"
	}
	return &Change{
		Comment: fmt.Sprintf("create view %q", v.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("CREATE %s %s AS %s", kind, d.viewPath(v), v.Definition)}},
		Down:    []Query{{Stmt: fmt.Sprintf("DROP %s %s", kind, d.viewPath(v))}},
	}, nil
}

func (d *Postgres) dropView(v *View) *Change {
	kind := "VIEW"
	if v.Materialized {
		kind = "MATERIALIZED VIEW"
	}
	ch := &Change{
		Comment: fmt.Sprintf("drop view %q", v.Name),
		Up:      []Query{{Stmt: fmt.Sprintf("DROP %s %s", kind, d.viewPath(v))}},
	}
	if v.Definition != "" {
		ch.Down = []Query{{Stmt: fmt.Sprintf("CREATE %s %s AS %s", kind, d.viewPath(v), v.Definition)}}
	}
	return ch
}
