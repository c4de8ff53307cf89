package schema

import (
	"context"
	stdsql "database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/dialect/sql"
)

// ReplicationMode selects which pool a runner draws its connection from.
// It is fixed at construction time.
type ReplicationMode string

// Replication modes.
const (
	ModeMaster  ReplicationMode = "master"
	ModeReplica ReplicationMode = "replica"
)

// Pool hands out physical connections. A runner obtains exactly one pooled
// connection for its lifetime and must release it exactly once.
type Pool interface {
	// Master returns a connection to the primary.
	Master(ctx context.Context) (*stdsql.Conn, error)
	// Replica returns a read connection, falling back to the primary when
	// no replicas are configured.
	Replica(ctx context.Context) (*stdsql.Conn, error)
}

// runnerRegistry is implemented by pools that track their active runners.
type runnerRegistry interface {
	register(*QueryRunner)
	deregister(*QueryRunner)
}

// DBPool is the default Pool over database/sql handles, one primary and
// zero or more replicas selected round-robin.
type DBPool struct {
	master   *stdsql.DB
	replicas []*stdsql.DB
	next     atomic.Uint32

	mu     sync.Mutex
	active map[*QueryRunner]struct{}
}

// NewDBPool returns a pool over the given primary and replica handles.
func NewDBPool(master *stdsql.DB, replicas ...*stdsql.DB) *DBPool {
	return &DBPool{
		master:   master,
		replicas: replicas,
		active:   make(map[*QueryRunner]struct{}),
	}
}

// Master implements Pool.
func (p *DBPool) Master(ctx context.Context) (*stdsql.Conn, error) {
	return p.master.Conn(ctx)
}

// Replica implements Pool. Without configured replicas the primary serves reads.
func (p *DBPool) Replica(ctx context.Context) (*stdsql.Conn, error) {
	if len(p.replicas) == 0 {
		return p.Master(ctx)
	}
	db := p.replicas[int(p.next.Add(1))%len(p.replicas)]
	return db.Conn(ctx)
}

func (p *DBPool) register(r *QueryRunner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[r] = struct{}{}
}

func (p *DBPool) deregister(r *QueryRunner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, r)
}

// ActiveRunners returns the number of runners currently holding connections.
func (p *DBPool) ActiveRunners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Shutdown releases every active runner and closes the underlying handles.
func (p *DBPool) Shutdown() error {
	p.mu.Lock()
	runners := make([]*QueryRunner, 0, len(p.active))
	for r := range p.active {
		runners = append(runners, r)
	}
	p.mu.Unlock()
	var errs []error
	for _, r := range runners {
		if err := r.Release(nil); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.master.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, db := range p.replicas {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueryEvent carries the statement of a before/after query notification.
type QueryEvent struct {
	Stmt    string
	Args    []any
	Elapsed time.Duration // set on the after notification
	Err     error         // set on the after notification
}

// TxEvent carries a transaction-state transition notification.
type TxEvent struct {
	// Op is one of "start", "commit", "rollback".
	Op string
	// Depth is the nesting depth after the transition completes.
	Depth int
}

// Events holds the lifecycle callbacks a runner broadcasts.
type Events struct {
	BeforeQuery func(context.Context, *QueryEvent)
	AfterQuery  func(context.Context, *QueryEvent)
	BeforeTx    func(context.Context, *TxEvent)
	AfterTx     func(context.Context, *TxEvent)
}

// QueryResult is the normalized result of one statement. The raw payload
// differs in shape between row-returning statements and DELETE/UPDATE style
// execs; callers must not assume a single raw shape.
type QueryResult struct {
	Records  []map[string]any
	Affected int64
	Raw      any
}

// RunnerOption configures a QueryRunner.
type RunnerOption func(*QueryRunner)

// WithMode fixes the replication mode of the runner.
func WithMode(mode ReplicationMode) RunnerOption {
	return func(r *QueryRunner) { r.mode = mode }
}

// WithEvents installs lifecycle callbacks.
func WithEvents(ev Events) RunnerOption {
	return func(r *QueryRunner) { r.events = ev }
}

// WithStats attaches a statistics collector to the runner.
func WithStats(stats *sql.QueryStats) RunnerOption {
	return func(r *QueryRunner) { r.stats = stats }
}

// WithSlowThreshold sets the duration above which a statement is reported
// as slow. Zero disables the warning.
func WithSlowThreshold(d time.Duration) RunnerOption {
	return func(r *QueryRunner) { r.slowThreshold = d }
}

// WithSlowQueryHook overrides the default slog warning for slow statements.
func WithSlowQueryHook(hook sql.SlowQueryHook) RunnerOption {
	return func(r *QueryRunner) { r.slowHook = hook }
}

// WithLogger sets the runner logger.
func WithLogger(lg *slog.Logger) RunnerOption {
	return func(r *QueryRunner) { r.log = lg }
}

// QueryRunner owns one physical connection and is the single point of SQL
// execution and transaction control for it, independently of the dialect
// it targets.
type QueryRunner struct {
	d    sqlDialect
	caps Capabilities
	pool Pool
	mode ReplicationMode

	events        Events
	stats         *sql.QueryStats
	slowThreshold time.Duration
	slowHook      sql.SlowQueryHook
	log           *slog.Logger

	sf singleflight.Group

	mu       sync.Mutex
	conn     *stdsql.Conn
	released bool
	depth    int
}

// NewRunner returns a runner for the named dialect drawing from the pool.
func NewRunner(dialectName string, pool Pool, opts ...RunnerOption) (*QueryRunner, error) {
	caps, ok := ByDialect(dialectName)
	if !ok {
		return nil, fmt.Errorf("schema: unsupported dialect %q", dialectName)
	}
	d, err := newSQLDialect(dialectName)
	if err != nil {
		return nil, err
	}
	r := &QueryRunner{
		d:        d,
		caps:     caps,
		pool:     pool,
		mode:     ModeMaster,
		slowHook: sql.LogSlowQueries(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Cap returns the capability table of the runner's dialect.
func (r *QueryRunner) Cap() Capabilities { return r.caps }

// Dialect returns the dialect name of the runner.
func (r *QueryRunner) Dialect() string { return r.caps.Dialect }

// TxDepth returns the current transaction nesting depth.
func (r *QueryRunner) TxDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth
}

// Connect obtains a connection from the pool. It is idempotent, and
// concurrent callers share one in-flight acquisition.
func (r *QueryRunner) Connect(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.released:
		r.mu.Unlock()
		return strata.NewReleasedError("connect")
	case r.conn != nil:
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	_, err, _ := r.sf.Do("connect", func() (any, error) {
		r.mu.Lock()
		if r.conn != nil {
			r.mu.Unlock()
			return nil, nil
		}
		r.mu.Unlock()
		var (
			conn *stdsql.Conn
			err  error
		)
		if r.mode == ModeReplica {
			conn, err = r.pool.Replica(ctx)
		} else {
			conn, err = r.pool.Master(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("schema: obtain connection: %w", err)
		}
		r.mu.Lock()
		released := r.released
		if !released {
			r.conn = conn
		}
		r.mu.Unlock()
		if released {
			_ = conn.Close()
			return nil, strata.NewReleasedError("connect")
		}
		if reg, ok := r.pool.(runnerRegistry); ok {
			reg.register(r)
		}
		return nil, nil
	})
	return err
}

// Release returns the connection to its pool. It is idempotent. A non-nil
// cause poisons the underlying connection so that the pool discards it
// rather than recycling a broken session.
func (r *QueryRunner) Release(cause error) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	conn := r.conn
	r.conn = nil
	r.depth = 0
	r.mu.Unlock()
	if reg, ok := r.pool.(runnerRegistry); ok {
		reg.deregister(r)
	}
	if conn == nil {
		return nil
	}
	if cause != nil {
		r.log.Debug("discarding broken connection", "cause", cause)
		// Returning driver.ErrBadConn from Raw marks the connection bad,
		// so database/sql closes it instead of returning it to the pool.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return nil
	}
	return conn.Close()
}

// Query executes a row-returning statement and normalizes the result.
func (r *QueryRunner) Query(ctx context.Context, stmt string, args ...any) (*QueryResult, error) {
	rows, err := r.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, strata.NewQueryFailedError(stmt, args, err)
	}
	return &QueryResult{Records: records, Raw: records}, nil
}

// Exec executes a statement that returns no rows and reports the affected
// row count.
func (r *QueryRunner) Exec(ctx context.Context, stmt string, args ...any) (*QueryResult, error) {
	res, err := r.exec(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Drivers without affected-count support still yield a usable result.
		affected = 0
	}
	return &QueryResult{Affected: affected, Raw: res}, nil
}

// StartTransaction begins a transaction, or establishes a savepoint when one
// is already active. The optional isolation level applies only to the
// outermost transaction.
func (r *QueryRunner) StartTransaction(ctx context.Context, isolation ...string) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return strata.NewReleasedError("start transaction")
	}
	depth := r.depth
	r.mu.Unlock()
	level := ""
	if len(isolation) > 0 {
		level = isolation[0]
	}
	r.fireTx(ctx, r.events.BeforeTx, "start", depth+1)
	if depth == 0 {
		// MySQL scopes SET TRANSACTION to the next transaction and must be
		// issued before BEGIN; Postgres sets it on the open transaction.
		if level != "" && r.caps.Dialect == dialect.MySQL {
			if _, err := r.exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+level); err != nil {
				return err
			}
		}
		if _, err := r.exec(ctx, "BEGIN"); err != nil {
			return err
		}
		if level != "" && r.caps.Dialect != dialect.MySQL {
			if _, err := r.exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+level); err != nil {
				return err
			}
		}
	} else {
		if _, err := r.exec(ctx, "SAVEPOINT "+r.savepoint(depth)); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.depth++
	depth = r.depth
	r.mu.Unlock()
	r.fireTx(ctx, r.events.AfterTx, "start", depth)
	return nil
}

// CommitTransaction commits the innermost logical transaction: it releases
// the newest savepoint, or commits for real at depth one.
func (r *QueryRunner) CommitTransaction(ctx context.Context) error {
	return r.finishTransaction(ctx, "commit")
}

// RollbackTransaction rolls back the innermost logical transaction: it rolls
// back to the newest savepoint, or aborts the whole transaction at depth one.
func (r *QueryRunner) RollbackTransaction(ctx context.Context) error {
	return r.finishTransaction(ctx, "rollback")
}

func (r *QueryRunner) finishTransaction(ctx context.Context, op string) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return strata.NewReleasedError(op)
	}
	depth := r.depth
	r.mu.Unlock()
	if depth == 0 {
		return strata.NewTxStateError(op)
	}
	r.fireTx(ctx, r.events.BeforeTx, op, depth-1)
	var stmt string
	switch {
	case depth > 1 && op == "commit":
		stmt = "RELEASE SAVEPOINT " + r.savepoint(depth-1)
	case depth > 1:
		stmt = "ROLLBACK TO SAVEPOINT " + r.savepoint(depth-1)
	case op == "commit":
		stmt = "COMMIT"
	default:
		stmt = "ROLLBACK"
	}
	if _, err := r.exec(ctx, stmt); err != nil {
		return err
	}
	r.mu.Lock()
	r.depth--
	depth = r.depth
	r.mu.Unlock()
	r.fireTx(ctx, r.events.AfterTx, op, depth)
	return nil
}

func (r *QueryRunner) savepoint(n int) string {
	return "strata_" + strconv.Itoa(n)
}

func (r *QueryRunner) fireTx(ctx context.Context, fn func(context.Context, *TxEvent), op string, depth int) {
	if fn != nil {
		fn(ctx, &TxEvent{Op: op, Depth: depth})
	}
}

// acquire checks the released flag, connects if needed, and returns the
// owned connection.
func (r *QueryRunner) acquire(ctx context.Context, op string) (*stdsql.Conn, error) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil, strata.NewReleasedError(op)
	}
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	conn = r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil, strata.NewReleasedError(op)
	}
	return conn, nil
}

// observe fires the before-query event and returns the closure completing
// the measurement on the after side.
func (r *QueryRunner) observe(ctx context.Context, stmt string, args []any, isQuery bool) func(error) {
	ev := &QueryEvent{Stmt: stmt, Args: args}
	if r.events.BeforeQuery != nil {
		r.events.BeforeQuery(ctx, ev)
	}
	start := time.Now()
	return func(err error) {
		elapsed := time.Since(start)
		if r.stats != nil {
			r.stats.Record(elapsed, err, isQuery)
		}
		if r.slowThreshold > 0 && elapsed > r.slowThreshold {
			if r.stats != nil {
				r.stats.SlowQueries.Add(1)
			}
			if r.slowHook != nil {
				r.slowHook(ctx, stmt, args, elapsed)
			}
		}
		ev.Elapsed, ev.Err = elapsed, err
		if r.events.AfterQuery != nil {
			r.events.AfterQuery(ctx, ev)
		}
	}
}

// query runs a row-returning statement on the owned connection.
func (r *QueryRunner) query(ctx context.Context, stmt string, args ...any) (*stdsql.Rows, error) {
	conn, err := r.acquire(ctx, "query")
	if err != nil {
		return nil, err
	}
	done := r.observe(ctx, stmt, args, true)
	rows, err := conn.QueryContext(ctx, stmt, args...)
	done(err)
	if err != nil {
		r.maybeDiscard(err)
		return nil, strata.NewQueryFailedError(stmt, args, err)
	}
	return rows, nil
}

// exec runs a statement on the owned connection.
func (r *QueryRunner) exec(ctx context.Context, stmt string, args ...any) (stdsql.Result, error) {
	conn, err := r.acquire(ctx, "exec")
	if err != nil {
		return nil, err
	}
	done := r.observe(ctx, stmt, args, false)
	res, err := conn.ExecContext(ctx, stmt, args...)
	done(err)
	if err != nil {
		r.maybeDiscard(err)
		return nil, strata.NewQueryFailedError(stmt, args, err)
	}
	return res, nil
}

// maybeDiscard releases the runner when the error indicates a broken
// connection, so the pool never reuses it.
func (r *QueryRunner) maybeDiscard(err error) {
	if isConnErr(err) {
		_ = r.Release(err)
	}
}

func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"broken pipe", "connection reset", "connection refused", "bad connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// scanRecords scans all rows into generic records keyed by column name.
func scanRecords(rows *stdsql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Introspection surface. Absence is an expected outcome for the HasXxx
// methods: they return booleans and never fail on "not present".

// CurrentDatabase returns the database the connection is bound to.
func (r *QueryRunner) CurrentDatabase(ctx context.Context) (string, error) {
	return r.d.currentDatabase(ctx, r)
}

// CurrentSchema returns the connection's ambient schema.
func (r *QueryRunner) CurrentSchema(ctx context.Context) (string, error) {
	return r.d.currentSchema(ctx, r)
}

// HasDatabase reports whether the named database exists.
func (r *QueryRunner) HasDatabase(ctx context.Context, name string) (bool, error) {
	return r.d.hasDatabase(ctx, r, name)
}

// HasSchema reports whether the named schema exists.
func (r *QueryRunner) HasSchema(ctx context.Context, name string) (bool, error) {
	return r.d.hasSchema(ctx, r, name)
}

// HasTable reports whether the possibly schema-qualified table exists.
func (r *QueryRunner) HasTable(ctx context.Context, name string) (bool, error) {
	sc, table := qualify(name)
	return r.d.hasTable(ctx, r, sc, table)
}

// HasColumn reports whether the column exists in the given table.
func (r *QueryRunner) HasColumn(ctx context.Context, table, column string) (bool, error) {
	sc, tbl := qualify(table)
	return r.d.hasColumn(ctx, r, sc, tbl, column)
}

// Tables loads fully populated table graphs for the given schema-qualified
// names; no names means every table in the ambient schema. Catalog queries
// run once per object kind per batch, never once per table.
func (r *QueryRunner) Tables(ctx context.Context, names ...string) ([]*Table, error) {
	return r.d.tables(ctx, r, names)
}

// Views loads the views (and materialized views) for the given names; no
// names means every view in the ambient schema.
func (r *QueryRunner) Views(ctx context.Context, names ...string) ([]*View, error) {
	return r.d.views(ctx, r, names)
}
