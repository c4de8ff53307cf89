package schema

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"
)

// Driver error classification. The build surfaces server errors wrapped in
// QueryFailedError; these predicates look through the wrapping and map the
// per-driver error shapes onto the conditions callers act on.

// IsUniqueConstraintError reports whether the error is a unique or
// primary-key violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "23505"
	}
	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		return mye.Number == 1062 || mye.Number == 1586
	}
	var sqe *sqlite.Error
	if errors.As(err, &sqe) {
		// SQLITE_CONSTRAINT_UNIQUE and SQLITE_CONSTRAINT_PRIMARYKEY.
		return sqe.Code() == 2067 || sqe.Code() == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyConstraintError reports whether the error is a foreign-key
// violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "23503"
	}
	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		return mye.Number == 1451 || mye.Number == 1452
	}
	var sqe *sqlite.Error
	if errors.As(err, &sqe) {
		// SQLITE_CONSTRAINT_FOREIGNKEY.
		return sqe.Code() == 787
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsCheckConstraintError reports whether the error is a check-constraint
// violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "23514"
	}
	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		return mye.Number == 3819
	}
	var sqe *sqlite.Error
	if errors.As(err, &sqe) {
		// SQLITE_CONSTRAINT_CHECK.
		return sqe.Code() == 275
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsUndefinedTableError reports whether the error names a missing table.
func IsUndefinedTableError(err error) bool {
	if err == nil {
		return false
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "42P01"
	}
	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		return mye.Number == 1146
	}
	return strings.Contains(err.Error(), "no such table")
}

// IsSerializationError reports whether the transaction failed due to
// serialization or deadlock and may be retried by the caller.
func IsSerializationError(err error) bool {
	if err == nil {
		return false
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return pqe.Code == "40001" || pqe.Code == "40P01"
	}
	var mye *mysql.MySQLError
	if errors.As(err, &mye) {
		return mye.Number == 1213 || mye.Number == 1205
	}
	var sqe *sqlite.Error
	if errors.As(err, &sqe) {
		// SQLITE_BUSY.
		return sqe.Code() == 5
	}
	return false
}
