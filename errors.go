package strata

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for the schema engine.
var (
	// ErrNotFound is returned when a table, column or constraint referenced
	// by name does not exist in the loaded or cached schema model.
	ErrNotFound = errors.New("strata: object not found")

	// ErrReleased is returned when an operation is attempted on a query
	// runner after it released its connection back to the pool.
	ErrReleased = errors.New("strata: query runner already released")

	// ErrTxNotStarted is returned when commit or rollback is attempted
	// without an active transaction.
	ErrTxNotStarted = errors.New("strata: transaction not started")

	// ErrUnsupported is returned when a dialect lacks the requested feature.
	ErrUnsupported = errors.New("strata: unsupported operation")
)

// NotFoundError reports a schema object that was referenced by name but is
// absent from the loaded model. It always fails fast, before any DDL runs.
type NotFoundError struct {
	kind  string // "table", "column", "index", "constraint", ...
	name  string
	table string // owning table, if any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.table != "" {
		return fmt.Sprintf("strata: %s %q not found in table %q", e.kind, e.name, e.table)
	}
	return fmt.Sprintf("strata: %s %q not found", e.kind, e.name)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Kind returns the object kind ("table", "column", ...).
func (e *NotFoundError) Kind() string { return e.kind }

// Name returns the name that was looked up.
func (e *NotFoundError) Name() string { return e.name }

// Table returns the owning table, if the lookup was table-scoped.
func (e *NotFoundError) Table() string { return e.table }

// NewNotFoundError returns a NotFoundError for a top-level object.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{kind: kind, name: name}
}

// NewNotFoundErrorInTable returns a NotFoundError scoped to a table.
func NewNotFoundErrorInTable(kind, name, table string) *NotFoundError {
	return &NotFoundError{kind: kind, name: name, table: table}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ReleasedError reports an operation attempted on a released query runner.
// This is a programmer error and is never retried.
type ReleasedError struct {
	op string
}

// Error returns the error string.
func (e *ReleasedError) Error() string {
	return fmt.Sprintf("strata: %s on released query runner", e.op)
}

// Is reports whether the target error matches ReleasedError.
func (e *ReleasedError) Is(err error) bool {
	return err == ErrReleased
}

// Op returns the operation that was attempted.
func (e *ReleasedError) Op() string { return e.op }

// NewReleasedError returns a ReleasedError for the given operation.
func NewReleasedError(op string) *ReleasedError {
	return &ReleasedError{op: op}
}

// IsReleased returns true if the error is a ReleasedError.
func IsReleased(err error) bool {
	if err == nil {
		return false
	}
	var e *ReleasedError
	return errors.As(err, &e) || errors.Is(err, ErrReleased)
}

// TxStateError reports a transaction-control call made in the wrong state,
// such as commit or rollback at depth zero.
type TxStateError struct {
	op string
}

// Error returns the error string.
func (e *TxStateError) Error() string {
	return fmt.Sprintf("strata: %s without an active transaction", e.op)
}

// Is reports whether the target error matches TxStateError.
func (e *TxStateError) Is(err error) bool {
	return err == ErrTxNotStarted
}

// Op returns the transaction operation ("commit", "rollback").
func (e *TxStateError) Op() string { return e.op }

// NewTxStateError returns a TxStateError for the given operation.
func NewTxStateError(op string) *TxStateError {
	return &TxStateError{op: op}
}

// IsTxState returns true if the error is a TxStateError.
func IsTxState(err error) bool {
	if err == nil {
		return false
	}
	var e *TxStateError
	return errors.As(err, &e) || errors.Is(err, ErrTxNotStarted)
}

// QueryFailedError wraps a driver error with the offending statement and its
// parameters, so failures are diagnosable without re-running the query.
type QueryFailedError struct {
	Stmt string
	Args []any
	Err  error
}

// Error returns the error string.
func (e *QueryFailedError) Error() string {
	var b strings.Builder
	b.WriteString("strata: query failed: ")
	b.WriteString(e.Err.Error())
	fmt.Fprintf(&b, ": %s", e.Stmt)
	if len(e.Args) > 0 {
		fmt.Fprintf(&b, " -- args: %v", e.Args)
	}
	return b.String()
}

// Unwrap returns the underlying driver error.
func (e *QueryFailedError) Unwrap() error { return e.Err }

// NewQueryFailedError wraps err with its statement and parameters.
func NewQueryFailedError(stmt string, args []any, err error) *QueryFailedError {
	return &QueryFailedError{Stmt: stmt, Args: args, Err: err}
}

// IsQueryFailed returns true if the error is a QueryFailedError.
func IsQueryFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryFailedError
	return errors.As(err, &e)
}

// UnsupportedError reports a documented dialect limitation, such as renaming
// a column on an engine without that feature, or creating a database inside
// a transaction.
type UnsupportedError struct {
	dialect string
	feature string
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("strata: %s is not supported by dialect %q", e.feature, e.dialect)
}

// Is reports whether the target error matches UnsupportedError.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// Dialect returns the dialect that lacks the feature.
func (e *UnsupportedError) Dialect() string { return e.dialect }

// Feature returns the unsupported feature description.
func (e *UnsupportedError) Feature() string { return e.feature }

// NewUnsupportedError returns an UnsupportedError for the dialect/feature pair.
func NewUnsupportedError(dialect, feature string) *UnsupportedError {
	return &UnsupportedError{dialect: dialect, feature: feature}
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}
