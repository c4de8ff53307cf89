package schema

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMetadataTable is the name of the engine bookkeeping table. The
// table stores state the server cannot report back verbatim, such as
// generated-column expressions and view definitions.
const DefaultMetadataTable = "strata_metadata"

// Metadata row types.
const (
	MetadataGeneratedColumn = "GENERATED_COLUMN"
	MetadataView            = "VIEW"
)

// metadataTable returns the declared model of the bookkeeping table.
func metadataTable(name string) *Table {
	t := NewTable(name)
	t.AddColumn(&Column{Name: "id", Type: "bigint", Primary: true, Generated: GenerationIncrement})
	t.AddColumn(&Column{Name: "type", Type: "varchar"})
	t.AddColumn(&Column{Name: "database", Type: "varchar", Nullable: true})
	t.AddColumn(&Column{Name: "schema", Type: "varchar", Nullable: true})
	t.AddColumn(&Column{Name: "table", Type: "varchar", Nullable: true})
	t.AddColumn(&Column{Name: "name", Type: "varchar", Nullable: true})
	t.AddColumn(&Column{Name: "value", Type: "text", Nullable: true})
	return t
}

// metadataRow is one bookkeeping entry.
type metadataRow struct {
	typ      string
	database string
	schema   string
	table    string
	name     string
	value    string
}

// planMetadata appends the bookkeeping work of a build: rows for stored
// generated-column expressions the build introduces, and removal of rows
// whose columns the build drops. The bookkeeping table itself is created on
// first use.
func (b *Builder) planMetadata(ctx context.Context, r *QueryRunner, tables []*Table, current map[string]*Table, plan *Plan) error {
	var inserts, deletes []metadataRow
	db, err := r.CurrentDatabase(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		cur := current[t.QualifiedName()]
		for _, c := range t.Columns {
			if c.GeneratedType != GeneratedStored || c.GeneratedAs == "" {
				continue
			}
			if cur != nil {
				if cc, ok := cur.Column(c.Name); ok && cc.GeneratedAs == c.GeneratedAs {
					continue
				}
			}
			inserts = append(inserts, metadataRow{
				typ: MetadataGeneratedColumn, database: db, schema: t.Schema,
				table: t.Name, name: c.Name, value: c.GeneratedAs,
			})
		}
		if cur == nil || !b.dropColumns {
			continue
		}
		for _, c := range cur.Columns {
			if c.GeneratedType == GeneratedStored && !t.HasColumn(c.Name) {
				deletes = append(deletes, metadataRow{
					typ: MetadataGeneratedColumn, database: db, schema: t.Schema,
					table: t.Name, name: c.Name,
				})
			}
		}
	}
	if len(inserts) == 0 && len(deletes) == 0 {
		return nil
	}
	if err := b.ensureMetadata(ctx, r, plan); err != nil {
		return err
	}
	for _, row := range deletes {
		plan.Changes = append(plan.Changes, b.metadataDelete(row))
	}
	for _, row := range inserts {
		plan.Changes = append(plan.Changes, b.metadataInsert(row))
	}
	return nil
}

// ensureMetadata appends creation of the bookkeeping table when it does not
// exist yet.
func (b *Builder) ensureMetadata(ctx context.Context, r *QueryRunner, plan *Plan) error {
	exists, err := r.HasTable(ctx, b.metadata)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	changes, err := b.d.createTable(metadataTable(b.metadata))
	if err != nil {
		return err
	}
	plan.Changes = append(plan.Changes, changes...)
	return nil
}

func (b *Builder) metadataInsert(row metadataRow) *Change {
	cols := []string{"type", "database", "schema", "table", "name", "value"}
	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.d.quote(c)
		holders[i] = b.d.placeholder(i + 1)
	}
	args := []any{row.typ, row.database, row.schema, row.table, row.name, row.value}
	return &Change{
		Comment: fmt.Sprintf("record %s metadata for %q.%q", strings.ToLower(row.typ), row.table, row.name),
		Up: []Query{{
			Stmt: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				b.d.quote(b.metadata), strings.Join(quoted, ", "), strings.Join(holders, ", ")),
			Args: args,
		}},
		Down: []Query{b.metadataDeleteQuery(row)},
	}
}

func (b *Builder) metadataDelete(row metadataRow) *Change {
	return &Change{
		Comment: fmt.Sprintf("remove %s metadata for %q.%q", strings.ToLower(row.typ), row.table, row.name),
		Up:      []Query{b.metadataDeleteQuery(row)},
		// The recorded value is gone at plan time; removal is not reversed.
	}
}

func (b *Builder) metadataDeleteQuery(row metadataRow) Query {
	return Query{
		Stmt: fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s AND %s = %s AND %s = %s AND %s = %s",
			b.d.quote(b.metadata),
			b.d.quote("type"), b.d.placeholder(1),
			b.d.quote("database"), b.d.placeholder(2),
			b.d.quote("schema"), b.d.placeholder(3),
			b.d.quote("table"), b.d.placeholder(4),
			b.d.quote("name"), b.d.placeholder(5)),
		Args: []any{row.typ, row.database, row.schema, row.table, row.name},
	}
}

// metadataValue loads one bookkeeping value; ok is false when no row exists
// or the bookkeeping table itself is missing.
func (b *Builder) metadataValue(ctx context.Context, r *QueryRunner, row metadataRow) (string, bool, error) {
	exists, err := r.HasTable(ctx, b.metadata)
	if err != nil || !exists {
		return "", false, err
	}
	res, err := r.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s AND %s = %s AND %s = %s AND %s = %s",
		b.d.quote("value"), b.d.quote(b.metadata),
		b.d.quote("type"), b.d.placeholder(1),
		b.d.quote("database"), b.d.placeholder(2),
		b.d.quote("schema"), b.d.placeholder(3),
		b.d.quote("table"), b.d.placeholder(4),
		b.d.quote("name"), b.d.placeholder(5)),
		row.typ, row.database, row.schema, row.table, row.name)
	if err != nil {
		return "", false, err
	}
	if len(res.Records) == 0 {
		return "", false, nil
	}
	return stringValue(res.Records[0]["value"]), true, nil
}

func stringValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// BuildViews converges the database on the declared views. The definition
// text the server reports back is rewritten beyond recognition, so the
// declared text is kept in the bookkeeping table and compared against it.
func (b *Builder) BuildViews(ctx context.Context, views ...*View) error {
	r, err := b.runner(ctx)
	if err != nil {
		return err
	}
	plan, err := b.planViews(ctx, r, views)
	if err != nil {
		_ = r.Release(err)
		return err
	}
	if err := b.apply(ctx, r, plan); err != nil {
		_ = r.Release(err)
		return err
	}
	b.mu.Lock()
	for _, v := range views {
		b.views[v.QualifiedName()] = v
	}
	b.mu.Unlock()
	return r.Release(nil)
}

func (b *Builder) planViews(ctx context.Context, r *QueryRunner, views []*View) (*Plan, error) {
	for _, v := range views {
		if v.Schema == "" && b.schemaName != "" {
			v.SetSchema(b.schemaName)
		}
	}
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.QualifiedName())
	}
	have, err := r.Views(ctx, names...)
	if err != nil {
		return nil, err
	}
	current := make(map[string]*View, len(have))
	for _, v := range have {
		current[v.QualifiedName()] = v
	}
	plan := &Plan{Name: "sync views"}
	ensured := false
	for _, v := range views {
		cur := current[v.QualifiedName()]
		row := metadataRow{typ: MetadataView, schema: v.Schema, name: v.Name, value: v.Definition}
		if cur != nil {
			stored, ok, err := b.metadataValue(ctx, r, row)
			if err != nil {
				return nil, err
			}
			if ok && normalizeExpr(stored) == normalizeExpr(v.Definition) && cur.Materialized == v.Materialized {
				continue
			}
			plan.Changes = append(plan.Changes, b.d.dropView(cur))
			if ok {
				plan.Changes = append(plan.Changes, b.metadataDelete(row))
			}
		}
		if !ensured {
			if err := b.ensureMetadata(ctx, r, plan); err != nil {
				return nil, err
			}
			ensured = true
		}
		ch, err := b.d.createView(v)
		if err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, ch, b.metadataInsert(row))
	}
	return plan, nil
}

// DropView drops a view and its bookkeeping row.
func (b *Builder) DropView(ctx context.Context, v *View) error {
	r, err := b.runner(ctx)
	if err != nil {
		return err
	}
	plan := &Plan{Name: "drop view " + v.Name, Changes: []*Change{
		b.d.dropView(v),
		b.metadataDelete(metadataRow{typ: MetadataView, schema: v.Schema, name: v.Name}),
	}}
	if err := b.apply(ctx, r, plan); err != nil {
		_ = r.Release(err)
		return err
	}
	b.mu.Lock()
	delete(b.views, v.QualifiedName())
	b.mu.Unlock()
	return r.Release(nil)
}
