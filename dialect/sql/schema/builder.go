package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ariga.io/atlas/sql/migrate"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
)

// sqlDialect is the surface a dialect must provide to the runner and the
// builder: introspection, type rendering and reversible DDL for every
// change kind.
type sqlDialect interface {
	name() string
	cap() Capabilities
	quote(ident string) string
	placeholder(n int) string
	typeSQL(c *Column) (string, error)
	defaultEqual(want, have *Column) bool

	currentDatabase(ctx context.Context, r *QueryRunner) (string, error)
	currentSchema(ctx context.Context, r *QueryRunner) (string, error)
	hasDatabase(ctx context.Context, r *QueryRunner, name string) (bool, error)
	hasSchema(ctx context.Context, r *QueryRunner, name string) (bool, error)
	hasTable(ctx context.Context, r *QueryRunner, schema, table string) (bool, error)
	hasColumn(ctx context.Context, r *QueryRunner, schema, table, column string) (bool, error)
	tables(ctx context.Context, r *QueryRunner, names []string) ([]*Table, error)
	views(ctx context.Context, r *QueryRunner, names []string) ([]*View, error)

	createTable(t *Table) ([]*Change, error)
	dropTable(t *Table) *Change
	renameTable(t *Table, to string) *Change
	addColumn(t *Table, c *Column) (*Change, error)
	modifyColumn(t *Table, ch columnChange) ([]*Change, error)
	dropColumn(t *Table, c *Column) *Change
	renameColumn(t *Table, from, to string) (*Change, error)
	addIndex(t *Table, idx *Index) *Change
	dropIndex(t *Table, idx *Index) *Change
	renameIndex(t *Table, from, to string) (*Change, error)
	addUnique(t *Table, u *Unique) (*Change, error)
	dropUnique(t *Table, u *Unique) *Change
	addCheck(t *Table, c *Check) (*Change, error)
	dropCheck(t *Table, c *Check) (*Change, error)
	addExclusion(t *Table, e *Exclusion) (*Change, error)
	dropExclusion(t *Table, e *Exclusion) (*Change, error)
	addForeignKey(t *Table, fk *ForeignKey) (*Change, error)
	dropForeignKey(t *Table, fk *ForeignKey) (*Change, error)
	renameConstraint(t *Table, from, to string) (*Change, error)
	tableComment(t *Table, comment string) (*Change, error)
	createView(v *View) (*Change, error)
	dropView(v *View) *Change
}

// inlineFKDialect marks dialects that can only declare foreign keys inside
// CREATE TABLE.
type inlineFKDialect interface {
	inlineForeignKeys() bool
}

// enumDialect is implemented by dialects with typed enums.
type enumDialect interface {
	hasEnum(ctx context.Context, r *QueryRunner, name string) (bool, error)
	createEnum(name string, values []string) *Change
	dropEnum(name string) *Change
}

func newSQLDialect(name string) (sqlDialect, error) {
	switch name {
	case dialect.Postgres:
		return NewPostgres(), nil
	case dialect.MySQL:
		return NewMySQL(), nil
	case dialect.SQLite:
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", name)
	}
}

// Creator is the interface wrapped by build hooks.
type Creator interface {
	Create(ctx context.Context, tables ...*Table) error
}

// CreateFunc adapts a function to Creator.
type CreateFunc func(ctx context.Context, tables ...*Table) error

// Create calls f(ctx, tables...).
func (f CreateFunc) Create(ctx context.Context, tables ...*Table) error {
	return f(ctx, tables...)
}

// Hook wraps the build step of a Builder.
type Hook func(Creator) Creator

// Differ computes the changes converging one inspected table on its
// declared state. A nil inspected table means the table does not exist.
type Differ interface {
	Diff(want, have *Table) ([]*Change, error)
}

// DiffFunc adapts a function to Differ.
type DiffFunc func(want, have *Table) ([]*Change, error)

// Diff calls f(want, have).
func (f DiffFunc) Diff(want, have *Table) ([]*Change, error) {
	return f(want, have)
}

// DiffHook wraps the per-table change computation.
type DiffHook func(Differ) Differ

// Applier executes a compiled plan on a runner.
type Applier interface {
	Apply(ctx context.Context, r *QueryRunner, plan *Plan) error
}

// ApplyFunc adapts a function to Applier.
type ApplyFunc func(ctx context.Context, r *QueryRunner, plan *Plan) error

// Apply calls f(ctx, r, plan).
func (f ApplyFunc) Apply(ctx context.Context, r *QueryRunner, plan *Plan) error {
	return f(ctx, r, plan)
}

// ApplyHook wraps plan execution.
type ApplyHook func(Applier) Applier

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSchemaName scopes the build to the given schema and ensures it exists.
func WithSchemaName(name string) BuilderOption {
	return func(b *Builder) { b.schemaName = name }
}

// WithDropColumn allows the build to drop columns absent from the declared
// model. Off by default.
func WithDropColumn(v bool) BuilderOption {
	return func(b *Builder) { b.dropColumns = v }
}

// WithDropIndex allows the build to drop indexes absent from the declared
// model. Off by default.
func WithDropIndex(v bool) BuilderOption {
	return func(b *Builder) { b.dropIndexes = v }
}

// WithForeignKeys controls whether foreign keys are created. On by default.
func WithForeignKeys(v bool) BuilderOption {
	return func(b *Builder) { b.withFKs = v }
}

// WithSkipChanges makes the build ignore column deviations of the given
// kinds.
func WithSkipChanges(k ChangeKind) BuilderOption {
	return func(b *Builder) { b.skip = k }
}

// WithHooks adds build hooks, applied in the order given.
func WithHooks(hooks ...Hook) BuilderOption {
	return func(b *Builder) { b.hooks = append(b.hooks, hooks...) }
}

// WithDiffHook adds hooks around per-table change computation.
func WithDiffHook(hooks ...DiffHook) BuilderOption {
	return func(b *Builder) { b.diffHooks = append(b.diffHooks, hooks...) }
}

// WithApplyHook adds hooks around plan execution.
func WithApplyHook(hooks ...ApplyHook) BuilderOption {
	return func(b *Builder) { b.applyHooks = append(b.applyHooks, hooks...) }
}

// WithDir sets the migration directory plans are written to by Diff and
// NamedDiff.
func WithDir(dir migrate.Dir) BuilderOption {
	return func(b *Builder) { b.dir = dir }
}

// WithFormatter overrides the migration file formatter.
func WithFormatter(f migrate.Formatter) BuilderOption {
	return func(b *Builder) { b.fmt = f }
}

// WithErrNoPlan makes Diff fail with migrate.ErrNoPlan when the database is
// already in sync.
func WithErrNoPlan(v bool) BuilderOption {
	return func(b *Builder) { b.errNoPlan = v }
}

// WithMetadataTable overrides the name of the engine metadata table.
func WithMetadataTable(name string) BuilderOption {
	return func(b *Builder) { b.metadata = name }
}

// WithPool overrides the connection pool the builder draws runners from.
func WithPool(p Pool) BuilderOption {
	return func(b *Builder) { b.pool = p }
}

// WithRunnerOptions forwards options to the runners the builder creates.
func WithRunnerOptions(opts ...RunnerOption) BuilderOption {
	return func(b *Builder) { b.runnerOpts = append(b.runnerOpts, opts...) }
}

// WithBuilderLogger sets the builder logger.
func WithBuilderLogger(lg *slog.Logger) BuilderOption {
	return func(b *Builder) { b.log = lg }
}

// Builder synchronizes a declared schema model with a database. A build
// loads the current state, computes the deviation, compiles it to a
// reversible plan and executes the plan in one transaction where the
// dialect allows it.
type Builder struct {
	drv    *sql.Driver
	d      sqlDialect
	caps   Capabilities
	naming Naming
	pool   Pool
	log    *slog.Logger

	schemaName  string
	dropColumns bool
	dropIndexes bool
	withFKs     bool
	skip        ChangeKind
	metadata    string
	errNoPlan   bool

	hooks      []Hook
	diffHooks  []DiffHook
	applyHooks []ApplyHook
	runnerOpts []RunnerOption

	dir migrate.Dir
	fmt migrate.Formatter

	mu     sync.Mutex
	tables map[string]*Table
	views  map[string]*View
}

// NewBuilder returns a builder over the given driver.
func NewBuilder(drv *sql.Driver, opts ...BuilderOption) (*Builder, error) {
	d, err := newSQLDialect(drv.Dialect())
	if err != nil {
		return nil, err
	}
	caps, _ := ByDialect(drv.Dialect())
	b := &Builder{
		drv:      drv,
		d:        d,
		caps:     caps,
		naming:   NewNaming(caps.MaxIdentifierLen),
		withFKs:  true,
		metadata: DefaultMetadataTable,
		log:      slog.Default(),
		tables:   make(map[string]*Table),
		views:    make(map[string]*View),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Naming returns the naming strategy of the builder.
func (b *Builder) Naming() Naming { return b.naming }

// Build converges the database on the declared tables.
func (b *Builder) Build(ctx context.Context, tables ...*Table) error {
	var creator Creator = CreateFunc(b.create)
	for i := len(b.hooks) - 1; i >= 0; i-- {
		creator = b.hooks[i](creator)
	}
	return creator.Create(ctx, tables...)
}

// Log computes and returns the plan that Build would execute, without
// touching the database beyond introspection.
func (b *Builder) Log(ctx context.Context, tables ...*Table) (*Plan, error) {
	r, err := b.runner(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Release(nil) }()
	return b.plan(ctx, r, tables)
}

func (b *Builder) create(ctx context.Context, tables ...*Table) error {
	r, err := b.runner(ctx)
	if err != nil {
		return err
	}
	plan, err := b.plan(ctx, r, tables)
	if err != nil {
		_ = r.Release(err)
		return err
	}
	if err := b.apply(ctx, r, plan); err != nil {
		_ = r.Release(err)
		return err
	}
	b.storeTables(tables)
	return r.Release(nil)
}

func (b *Builder) runner(ctx context.Context) (*QueryRunner, error) {
	pool := b.pool
	if pool == nil {
		pool = NewDBPool(b.drv.DB())
	}
	r, err := NewRunner(b.drv.Dialect(), pool, b.runnerOpts...)
	if err != nil {
		return nil, err
	}
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// plan loads the current state of the declared tables and compiles the
// deviation into a reversible plan in dependency order: per-table column
// and constraint work first, foreign keys across all tables last.
func (b *Builder) plan(ctx context.Context, r *QueryRunner, tables []*Table) (*Plan, error) {
	for _, t := range tables {
		if t.Schema == "" && b.schemaName != "" {
			t.SetSchema(b.schemaName)
		}
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.QualifiedName())
	}
	have, err := r.Tables(ctx, names...)
	if err != nil {
		return nil, err
	}
	current := make(map[string]*Table, len(have))
	for _, t := range have {
		current[t.QualifiedName()] = t
	}
	plan := &Plan{Name: "sync"}
	if err := b.planEnums(ctx, r, tables, current, plan); err != nil {
		return nil, err
	}
	differ := b.differ()
	for _, t := range tables {
		changes, err := differ.Diff(t, current[t.QualifiedName()])
		if err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, changes...)
	}
	if b.withFKs {
		if err := b.planForeignKeys(tables, current, plan); err != nil {
			return nil, err
		}
	}
	if err := b.planMetadata(ctx, r, tables, current, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (b *Builder) differ() Differ {
	var differ Differ = DiffFunc(func(want, have *Table) ([]*Change, error) {
		return b.tableChanges(want, have)
	})
	for i := len(b.diffHooks) - 1; i >= 0; i-- {
		differ = b.diffHooks[i](differ)
	}
	return differ
}

// planEnums creates typed enums before any table references them. Each enum
// type is created once even when shared by several tables.
func (b *Builder) planEnums(ctx context.Context, r *QueryRunner, tables []*Table, current map[string]*Table, plan *Plan) error {
	ed, ok := b.d.(enumDialect)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			if len(c.Enums) == 0 {
				continue
			}
			name := c.EnumName
			if name == "" {
				name = b.naming.EnumName(t.Name, c.Name)
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			// An existing table with this column means the type exists; a
			// changed member set is handled by the column change protocol.
			if cur, ok := current[t.QualifiedName()]; ok && cur.HasColumn(c.Name) {
				continue
			}
			exists, err := ed.hasEnum(ctx, r, name)
			if err != nil {
				return err
			}
			if !exists {
				plan.Changes = append(plan.Changes, ed.createEnum(name, c.Enums))
			}
		}
	}
	return nil
}

// tableChanges compiles the changes for one declared table. A nil inspected
// table compiles to table creation; otherwise the deviation is compiled in
// dependency order: drops of stale constraints first, column work next,
// additions of new constraints last.
func (b *Builder) tableChanges(want, have *Table) ([]*Change, error) {
	if have == nil {
		changes, err := b.d.createTable(want)
		if err != nil {
			return nil, err
		}
		for _, idx := range want.Indexes {
			changes = append(changes, b.d.addIndex(want, idx))
		}
		if want.Comment != "" {
			ch, err := b.d.tableComment(want, want.Comment)
			if err != nil {
				return nil, err
			}
			changes = append(changes, ch)
		}
		return changes, nil
	}
	diff, err := diffTables(b.d, want, have)
	if err != nil {
		return nil, err
	}
	var changes []*Change
	for _, fk := range diff.dropForeignKeys {
		ch, err := b.d.dropForeignKey(have, fk)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, idx := range diff.dropIndexes {
		_, redefined := want.Index(idx.Name)
		if b.dropIndexes || redefined {
			changes = append(changes, b.d.dropIndex(have, idx))
		}
	}
	for _, u := range diff.dropUniques {
		changes = append(changes, b.d.dropUnique(have, u))
	}
	for _, c := range diff.dropChecks {
		ch, err := b.d.dropCheck(have, c)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, e := range diff.dropExclusions {
		ch, err := b.d.dropExclusion(have, e)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, c := range diff.addColumns {
		ch, err := b.d.addColumn(want, c)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, mc := range diff.modifyColumns {
		mc.kind &^= b.skip
		if mc.kind == NoChange {
			continue
		}
		chs, err := b.d.modifyColumn(want, mc)
		if err != nil {
			return nil, err
		}
		changes = append(changes, chs...)
	}
	if b.dropColumns {
		for _, c := range diff.dropColumns {
			changes = append(changes, b.d.dropColumn(have, c))
		}
	}
	for _, idx := range diff.addIndexes {
		changes = append(changes, b.d.addIndex(want, idx))
	}
	for _, u := range diff.addUniques {
		ch, err := b.d.addUnique(want, u)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, c := range diff.addChecks {
		ch, err := b.d.addCheck(want, c)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	for _, e := range diff.addExclusions {
		ch, err := b.d.addExclusion(want, e)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	if diff.comment {
		ch, err := b.d.tableComment(want, want.Comment)
		if err != nil {
			return nil, err
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

// planForeignKeys adds the missing foreign keys of every table after all
// tables and columns exist, so reference order never matters.
func (b *Builder) planForeignKeys(tables []*Table, current map[string]*Table, plan *Plan) error {
	inline, _ := b.d.(inlineFKDialect)
	for _, t := range tables {
		cur := current[t.QualifiedName()]
		// Dialects without ADD CONSTRAINT declare the keys of new tables
		// inside CREATE TABLE instead.
		if cur == nil && inline != nil && inline.inlineForeignKeys() {
			continue
		}
		for _, fk := range t.ForeignKeys {
			if cur != nil {
				if _, ok := cur.ForeignKey(fk.Name); ok {
					continue
				}
				if hasFK(cur, fk) {
					continue
				}
			}
			ch, err := b.d.addForeignKey(t, fk)
			if err != nil {
				return err
			}
			plan.Changes = append(plan.Changes, ch)
		}
	}
	return nil
}

func hasFK(t *Table, fk *ForeignKey) bool {
	key := fkKey(fk)
	for _, have := range t.ForeignKeys {
		if fkKey(have) == key {
			return true
		}
	}
	return false
}

// apply executes the plan. Dialects with transactional DDL run it in one
// transaction and roll back on failure; the original error is returned
// either way, with rollback failures logged rather than propagated.
func (b *Builder) apply(ctx context.Context, r *QueryRunner, plan *Plan) error {
	var applier Applier = ApplyFunc(b.applyPlan)
	for i := len(b.applyHooks) - 1; i >= 0; i-- {
		applier = b.applyHooks[i](applier)
	}
	return applier.Apply(ctx, r, plan)
}

func (b *Builder) applyPlan(ctx context.Context, r *QueryRunner, plan *Plan) error {
	if plan.Empty() {
		return nil
	}
	if b.schemaName != "" {
		if err := b.ensureSchema(ctx, r); err != nil {
			return err
		}
	}
	tx := b.caps.TransactionalDDL
	if tx {
		if err := r.StartTransaction(ctx); err != nil {
			return err
		}
	}
	for _, q := range plan.UpQueries() {
		if _, err := r.Exec(ctx, q.Stmt, q.Args...); err != nil {
			if tx {
				if rerr := r.RollbackTransaction(ctx); rerr != nil {
					b.log.Error("rollback after failed build", "error", rerr)
				}
			}
			return err
		}
	}
	if tx {
		return r.CommitTransaction(ctx)
	}
	return nil
}

// ensureSchema creates the target schema when missing. Runs outside the
// build transaction: schema creation is not transactional everywhere.
func (b *Builder) ensureSchema(ctx context.Context, r *QueryRunner) error {
	exists, err := r.HasSchema(ctx, b.schemaName)
	if err != nil || exists {
		return err
	}
	_, err = r.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+b.d.quote(b.schemaName))
	return err
}

// Cache access. The cache maps qualified names to the last known state of
// each table; mutation methods read through it, apply DDL on a clone and
// swap the clone in only after the database accepted the change.

func (b *Builder) cachedTable(ctx context.Context, r *QueryRunner, name string) (*Table, error) {
	b.mu.Lock()
	t, ok := b.tables[name]
	b.mu.Unlock()
	if ok {
		return t, nil
	}
	ts, err := r.Tables(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		_, table := qualify(name)
		return nil, strata.NewNotFoundError("table", table)
	}
	b.mu.Lock()
	b.tables[name] = ts[0]
	b.mu.Unlock()
	return ts[0], nil
}

func (b *Builder) storeTables(tables []*Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tables {
		b.tables[t.QualifiedName()] = t
	}
}

func (b *Builder) swapTable(oldName string, t *Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tables, oldName)
	b.tables[t.QualifiedName()] = t
}

// AddColumnToTable adds one column to an existing table.
func (b *Builder) AddColumnToTable(ctx context.Context, tableName string, c *Column) error {
	return b.mutate(ctx, tableName, func(t *Table) ([]*Change, error) {
		if t.HasColumn(c.Name) {
			return nil, fmt.Errorf("schema: column %q already exists in table %q", c.Name, t.Name)
		}
		ch, err := b.d.addColumn(t, c)
		if err != nil {
			return nil, err
		}
		t.AddColumn(c)
		return []*Change{ch}, nil
	})
}

// DropColumnFromTable drops one column from an existing table.
func (b *Builder) DropColumnFromTable(ctx context.Context, tableName, column string) error {
	return b.mutate(ctx, tableName, func(t *Table) ([]*Change, error) {
		c, ok := t.Column(column)
		if !ok {
			return nil, strata.NewNotFoundErrorInTable("column", column, t.Name)
		}
		ch := b.d.dropColumn(t, c)
		t.RemoveColumn(column)
		return []*Change{ch}, nil
	})
}

// RenameTable renames a table and cascades the rename into every constraint
// and index whose name the naming strategy derived from the old table name.
// Names that differ from the derived form are treated as user-chosen and
// left alone.
func (b *Builder) RenameTable(ctx context.Context, from, to string) error {
	return b.mutate(ctx, from, func(t *Table) ([]*Change, error) {
		oldName := t.Name
		changes := []*Change{b.d.renameTable(t, to)}
		t.Name = to
		renames, err := b.cascadeTableRename(t, oldName)
		if err != nil {
			return nil, err
		}
		return append(changes, renames...), nil
	})
}

// RenameColumnInTable renames a column and cascades the rename into every
// constraint and index whose name the naming strategy derived from the old
// column name.
func (b *Builder) RenameColumnInTable(ctx context.Context, tableName, from, to string) error {
	return b.mutate(ctx, tableName, func(t *Table) ([]*Change, error) {
		c, ok := t.Column(from)
		if !ok {
			return nil, strata.NewNotFoundErrorInTable("column", from, t.Name)
		}
		ch, err := b.d.renameColumn(t, from, to)
		if err != nil {
			return nil, err
		}
		changes := []*Change{ch}
		c.Name = to
		renames, err := b.cascadeColumnRename(t, from, to)
		if err != nil {
			return nil, err
		}
		return append(changes, renames...), nil
	})
}

// mutate runs one cache-backed mutation: load through the cache, clone,
// compute and execute the DDL, and swap the mutated clone in on success.
func (b *Builder) mutate(ctx context.Context, tableName string, fn func(*Table) ([]*Change, error)) error {
	r, err := b.runner(ctx)
	if err != nil {
		return err
	}
	cur, err := b.cachedTable(ctx, r, tableName)
	if err != nil {
		_ = r.Release(err)
		return err
	}
	next := cur.Clone()
	changes, err := fn(next)
	if err != nil {
		_ = r.Release(nil)
		return err
	}
	plan := &Plan{Name: "mutate " + tableName, Changes: changes}
	if err := b.apply(ctx, r, plan); err != nil {
		_ = r.Release(err)
		return err
	}
	b.swapTable(tableName, next)
	return r.Release(nil)
}

// cascadeTableRename recomputes derived constraint names after the table
// itself was renamed. t already carries the new name; oldName is the name
// the existing constraint names were derived from.
func (b *Builder) cascadeTableRename(t *Table, oldName string) ([]*Change, error) {
	var changes []*Change
	rename := func(from, to string, index bool) error {
		if from == to {
			return nil
		}
		var (
			ch  *Change
			err error
		)
		if index {
			ch, err = b.d.renameIndex(t, from, to)
		} else {
			ch, err = b.d.renameConstraint(t, from, to)
		}
		if err != nil {
			return err
		}
		changes = append(changes, ch)
		return nil
	}
	if t.PKName == "" || t.PKName == b.naming.PrimaryKeyName(oldName, names(t.PrimaryKey())...) {
		pk := t.PrimaryKey()
		if len(pk) > 0 {
			from := t.PKName
			if from == "" {
				from = b.naming.PrimaryKeyName(oldName, names(pk)...)
			}
			to := b.naming.PrimaryKeyName(t.Name, names(pk)...)
			t.PKName = to
			if err := rename(from, to, false); err != nil {
				return nil, err
			}
		}
	}
	for _, idx := range t.Indexes {
		if idx.Name == b.naming.IndexName(oldName, idx.Columns...) {
			to := b.naming.IndexName(t.Name, idx.Columns...)
			from := idx.Name
			idx.Name = to
			if err := rename(from, to, true); err != nil {
				return nil, err
			}
		}
	}
	for _, u := range t.Uniques {
		if u.Name == b.naming.UniqueName(oldName, u.Columns...) {
			to := b.naming.UniqueName(t.Name, u.Columns...)
			from := u.Name
			u.Name = to
			if err := rename(from, to, false); err != nil {
				return nil, err
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		if fk.Name == b.naming.ForeignKeyName(oldName, fk.Columns...) {
			to := b.naming.ForeignKeyName(t.Name, fk.Columns...)
			from := fk.Name
			fk.Name = to
			if err := rename(from, to, false); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range t.Checks {
		if c.Name == b.naming.CheckName(oldName, c.Expression) {
			to := b.naming.CheckName(t.Name, c.Expression)
			from := c.Name
			c.Name = to
			if err := rename(from, to, false); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range t.Exclusions {
		if e.Name == b.naming.ExclusionName(oldName, e.Expression) {
			to := b.naming.ExclusionName(t.Name, e.Expression)
			from := e.Name
			e.Name = to
			if err := rename(from, to, false); err != nil {
				return nil, err
			}
		}
	}
	return changes, nil
}

// cascadeColumnRename recomputes derived constraint names after one column
// was renamed. The column on t already carries the new name; constraint
// column lists are rewritten here. Only names equal to the strategy's
// derived form for the old column are renamed.
func (b *Builder) cascadeColumnRename(t *Table, from, to string) ([]*Change, error) {
	var changes []*Change
	// rewrite updates a constraint column list in place and reports whether
	// the renamed column participates.
	rewrite := func(cols []string) bool {
		hit := false
		for i, c := range cols {
			if c == from {
				cols[i] = to
				hit = true
			}
		}
		return hit
	}
	// preRename maps an already-rewritten column list back to its old form.
	preRename := func(cols []string) []string {
		out := make([]string, len(cols))
		for i, c := range cols {
			if c == to {
				out[i] = from
			} else {
				out[i] = c
			}
		}
		return out
	}
	renameIf := func(cur, derivedOld, derivedNew string, index bool, set func(string)) error {
		if cur != derivedOld || cur == derivedNew {
			return nil
		}
		var (
			ch  *Change
			err error
		)
		if index {
			ch, err = b.d.renameIndex(t, cur, derivedNew)
		} else {
			ch, err = b.d.renameConstraint(t, cur, derivedNew)
		}
		if err != nil {
			return err
		}
		set(derivedNew)
		changes = append(changes, ch)
		return nil
	}
	// Primary-key columns already carry the new name.
	if pk := names(t.PrimaryKey()); containsString(pk, to) {
		cur := t.PKName
		derivedOld := b.naming.PrimaryKeyName(t.Name, preRename(pk)...)
		if cur == "" {
			cur = derivedOld
		}
		err := renameIf(cur, derivedOld, b.naming.PrimaryKeyName(t.Name, pk...), false, func(n string) { t.PKName = n })
		if err != nil {
			return nil, err
		}
	}
	for _, idx := range t.Indexes {
		if !rewrite(idx.Columns) {
			continue
		}
		idx := idx
		err := renameIf(idx.Name, b.naming.IndexName(t.Name, preRename(idx.Columns)...),
			b.naming.IndexName(t.Name, idx.Columns...), true, func(n string) { idx.Name = n })
		if err != nil {
			return nil, err
		}
	}
	for _, u := range t.Uniques {
		if !rewrite(u.Columns) {
			continue
		}
		u := u
		err := renameIf(u.Name, b.naming.UniqueName(t.Name, preRename(u.Columns)...),
			b.naming.UniqueName(t.Name, u.Columns...), false, func(n string) { u.Name = n })
		if err != nil {
			return nil, err
		}
	}
	for _, fk := range t.ForeignKeys {
		if !rewrite(fk.Columns) {
			continue
		}
		fk := fk
		err := renameIf(fk.Name, b.naming.ForeignKeyName(t.Name, preRename(fk.Columns)...),
			b.naming.ForeignKeyName(t.Name, fk.Columns...), false, func(n string) { fk.Name = n })
		if err != nil {
			return nil, err
		}
	}
	return changes, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func names(cols []*Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
