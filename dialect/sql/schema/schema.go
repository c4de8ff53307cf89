package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Table represents one table in the schema model, either declared by the
// caller or reconstructed from catalog introspection.
type Table struct {
	Database    string
	Schema      string
	Name        string
	Comment     string
	Columns     []*Column
	Indexes     []*Index
	Uniques     []*Unique
	Checks      []*Check
	Exclusions  []*Exclusion
	ForeignKeys []*ForeignKey
	// PKName is the user-supplied primary-key constraint name. When empty,
	// the name is derived from the naming strategy over the primary columns.
	// The two cases are kept apart because rename cascades only follow
	// derived names.
	PKName string
}

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// SetSchema sets the schema of the table. Returns the table for chaining.
func (t *Table) SetSchema(schema string) *Table {
	t.Schema = schema
	return t
}

// SetComment sets the table comment. Returns the table for chaining.
func (t *Table) SetComment(comment string) *Table {
	t.Comment = comment
	return t
}

// AddColumn appends the given column to the table. The column order is part
// of the model: introspection comparison and CREATE TABLE text depend on it.
func (t *Table) AddColumn(c *Column) *Table {
	t.Columns = append(t.Columns, c)
	return t
}

// RemoveColumn removes the named column and reports whether it was found.
func (t *Table) RemoveColumn(name string) bool {
	for i, c := range t.Columns {
		if c.Name == name {
			t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
			return true
		}
	}
	return false
}

// Column returns the named column and whether it exists.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasColumn reports if the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// PrimaryKey returns the columns marked primary, in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, c := range t.Columns {
		if c.Primary {
			pk = append(pk, c)
		}
	}
	return pk
}

// AddIndex appends an index over the given columns.
func (t *Table) AddIndex(name string, unique bool, columns []string) *Table {
	t.Indexes = append(t.Indexes, &Index{Name: name, Unique: unique, Columns: columns})
	return t
}

// Index returns the named index and whether it exists.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// RemoveIndex removes the named index and reports whether it was found.
func (t *Table) RemoveIndex(name string) bool {
	for i, idx := range t.Indexes {
		if idx.Name == name {
			t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
			return true
		}
	}
	return false
}

// AddUnique appends a unique constraint over the given columns.
func (t *Table) AddUnique(name string, columns []string) *Table {
	t.Uniques = append(t.Uniques, &Unique{Name: name, Columns: columns})
	return t
}

// AddCheck appends a check constraint with the given expression.
func (t *Table) AddCheck(name, expr string) *Table {
	t.Checks = append(t.Checks, &Check{Name: name, Expression: expr})
	return t
}

// AddExclusion appends an exclusion constraint with the given expression,
// e.g. "USING gist (during WITH &&)".
func (t *Table) AddExclusion(name, expr string) *Table {
	t.Exclusions = append(t.Exclusions, &Exclusion{Name: name, Expression: expr})
	return t
}

// AddForeignKey appends the given foreign key to the table.
func (t *Table) AddForeignKey(fk *ForeignKey) *Table {
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return t
}

// ForeignKey returns the named foreign key and whether it exists.
func (t *Table) ForeignKey(name string) (*ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return fk, true
		}
	}
	return nil, false
}

// IndexesOf returns the indexes whose columns include the given column.
func (t *Table) IndexesOf(column string) []*Index {
	var idxs []*Index
	for _, idx := range t.Indexes {
		if slices.Contains(idx.Columns, column) {
			idxs = append(idxs, idx)
		}
	}
	return idxs
}

// UniquesOf returns the unique constraints whose columns include the given column.
func (t *Table) UniquesOf(column string) []*Unique {
	var uqs []*Unique
	for _, uq := range t.Uniques {
		if slices.Contains(uq.Columns, column) {
			uqs = append(uqs, uq)
		}
	}
	return uqs
}

// Clone returns a deep copy of the table. Cached tables are never mutated
// in place: mutators clone, apply the DDL, and swap on success.
func (t *Table) Clone() *Table {
	ct := &Table{
		Database: t.Database,
		Schema:   t.Schema,
		Name:     t.Name,
		Comment:  t.Comment,
		PKName:   t.PKName,
	}
	for _, c := range t.Columns {
		ct.Columns = append(ct.Columns, c.Clone())
	}
	for _, idx := range t.Indexes {
		ct.Indexes = append(ct.Indexes, idx.Clone())
	}
	for _, uq := range t.Uniques {
		ct.Uniques = append(ct.Uniques, uq.Clone())
	}
	for _, ck := range t.Checks {
		ct.Checks = append(ct.Checks, ck.Clone())
	}
	for _, ex := range t.Exclusions {
		ct.Exclusions = append(ct.Exclusions, ex.Clone())
	}
	for _, fk := range t.ForeignKeys {
		ct.ForeignKeys = append(ct.ForeignKeys, fk.Clone())
	}
	return ct
}

// QualifiedName returns the schema-qualified table key used by the cache.
func (t *Table) QualifiedName() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// Generation is the value-generation strategy of a column.
type Generation string

// Generation strategies.
const (
	GenerationNone      Generation = ""
	GenerationIncrement Generation = "increment"
	GenerationUUID      Generation = "uuid"
	GenerationIdentity  Generation = "identity"
)

// GeneratedType distinguishes stored from virtual computed columns.
const (
	GeneratedStored  = "STORED"
	GeneratedVirtual = "VIRTUAL"
)

// Column represents one table column.
type Column struct {
	Name     string
	Type     string // dialect type name, e.g. "varchar", "integer".
	Primary  bool
	Nullable bool
	Unique   bool
	// Length is the declared length for length-accepting types. Empty means
	// unset, which is different from the dialect's default for the type.
	Length string
	// Precision and Scale are nil when unset.
	Precision *int
	Scale     *int
	// Default is the raw database literal, nil when the column has none.
	Default *string
	// Generated is the value-generation strategy (increment/uuid/identity).
	Generated Generation
	// GeneratedAs marks a computed column; type and length comparison are
	// suppressed for such columns since the engine derives their type from
	// the expression.
	GeneratedAs   string
	GeneratedType string // STORED or VIRTUAL
	Enums         []string
	EnumName      string
	SpatialType   string
	SRID          *int
	Charset       string
	Collation     string
	Comment       string
}

// Computed reports whether the column value is derived from an expression.
func (c *Column) Computed() bool {
	return c.GeneratedAs != ""
}

// HasDefault reports whether the column carries a database default.
func (c *Column) HasDefault() bool {
	return c.Default != nil
}

// DefaultOr returns the default literal, or the fallback when unset.
func (c *Column) DefaultOr(fallback string) string {
	if c.Default != nil {
		return *c.Default
	}
	return fallback
}

// SetDefault sets the raw default literal.
func (c *Column) SetDefault(v string) *Column {
	c.Default = &v
	return c
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	cc := *c
	if c.Precision != nil {
		p := *c.Precision
		cc.Precision = &p
	}
	if c.Scale != nil {
		s := *c.Scale
		cc.Scale = &s
	}
	if c.Default != nil {
		d := *c.Default
		cc.Default = &d
	}
	if c.SRID != nil {
		s := *c.SRID
		cc.SRID = &s
	}
	cc.Enums = slices.Clone(c.Enums)
	return &cc
}

// ScanDefault parses a raw catalog default literal into the column. NULL and
// function-call defaults for generated UUID columns are treated as unset.
func (c *Column) ScanDefault(raw string) error {
	if raw == "" || strings.EqualFold(raw, "NULL") {
		c.Default = nil
		return nil
	}
	if c.Generated == GenerationUUID {
		// Distinguish a fixed UUID literal from a generator function call
		// such as gen_random_uuid().
		if _, err := uuid.Parse(strings.Trim(raw, "'")); err != nil {
			c.Default = nil
			return nil
		}
	}
	c.Default = &raw
	return nil
}

// Index represents a table index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	// Where is the partial-index predicate, empty for full indexes.
	Where      string
	Spatial    bool
	Concurrent bool
}

// Clone returns a copy of the index.
func (i *Index) Clone() *Index {
	ci := *i
	ci.Columns = slices.Clone(i.Columns)
	return &ci
}

// Unique represents a unique constraint.
type Unique struct {
	Name    string
	Columns []string
}

// Clone returns a copy of the constraint.
func (u *Unique) Clone() *Unique {
	cu := *u
	cu.Columns = slices.Clone(u.Columns)
	return &cu
}

// Check represents a check constraint.
type Check struct {
	Name       string
	Expression string
}

// Clone returns a copy of the constraint.
func (c *Check) Clone() *Check {
	cc := *c
	return &cc
}

// Exclusion represents an exclusion constraint (Postgres).
type Exclusion struct {
	Name       string
	Expression string
}

// Clone returns a copy of the constraint.
func (e *Exclusion) Clone() *Exclusion {
	ce := *e
	return &ce
}

// ReferenceOption for constraint actions.
type ReferenceOption string

// Reference options (actions) specified by ON UPDATE and ON DELETE
// subclauses of the FOREIGN KEY clause.
const (
	NoAction   ReferenceOption = "NO ACTION"
	Restrict   ReferenceOption = "RESTRICT"
	Cascade    ReferenceOption = "CASCADE"
	SetNull    ReferenceOption = "SET NULL"
	SetDefault ReferenceOption = "SET DEFAULT"
)

// Deferrable modes of a foreign key (Postgres).
const (
	DeferrableImmediate = "INITIALLY IMMEDIATE"
	DeferrableDeferred  = "INITIALLY DEFERRED"
)

// ForeignKey represents a foreign-key constraint.
type ForeignKey struct {
	Name       string
	Columns    []string
	RefSchema  string
	RefTable   string
	RefColumns []string
	OnDelete   ReferenceOption
	OnUpdate   ReferenceOption
	Deferrable string
}

// Clone returns a copy of the foreign key.
func (fk *ForeignKey) Clone() *ForeignKey {
	cfk := *fk
	cfk.Columns = slices.Clone(fk.Columns)
	cfk.RefColumns = slices.Clone(fk.RefColumns)
	return &cfk
}

// View represents a database view. The defining SQL is stored in the
// metadata table because at least one supported dialect cannot return it
// from catalog introspection in its original form.
type View struct {
	Schema       string
	Name         string
	Definition   string
	Materialized bool
	Indexes      []*Index
}

// NewView returns a new view with the given name and defining SQL.
func NewView(name, definition string) *View {
	return &View{Name: name, Definition: definition}
}

// SetSchema sets the schema of the view. Returns the view for chaining.
func (v *View) SetSchema(schema string) *View {
	v.Schema = schema
	return v
}

// Clone returns a deep copy of the view.
func (v *View) Clone() *View {
	cv := *v
	cv.Indexes = nil
	for _, idx := range v.Indexes {
		cv.Indexes = append(cv.Indexes, idx.Clone())
	}
	return &cv
}

// QualifiedName returns the schema-qualified view key used by the cache.
func (v *View) QualifiedName() string {
	if v.Schema != "" {
		return v.Schema + "." + v.Name
	}
	return v.Name
}

// formatInt formats an optional precision/scale component.
func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

// indexOf returns the position of s in xs, or -1.
func indexOf(xs []string, s string) int {
	for i := range xs {
		if xs[i] == s {
			return i
		}
	}
	return -1
}

// qualify splits a possibly schema-qualified name into schema and name.
func qualify(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// quoteList renders a quoted, comma-separated identifier list.
func quoteList(quote func(string) string, names []string) string {
	qs := make([]string, len(names))
	for i, n := range names {
		qs[i] = quote(n)
	}
	return strings.Join(qs, ", ")
}

// literalList renders a quoted SQL string literal list, e.g. 'A', 'B'.
func literalList(values []string) string {
	ls := make([]string, len(values))
	for i, v := range values {
		ls[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	}
	return strings.Join(ls, ", ")
}
