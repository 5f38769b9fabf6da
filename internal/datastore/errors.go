package datastore

import (
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Sentinel errors for store operations. Errors returned by the store wrap
// these, so callers test with errors.Is.
var (
	// ErrClosed indicates the store handle was used after Close.
	ErrClosed = errors.NewStd("store has been closed")

	// ErrDuplicateKey indicates a strict insert hit an existing identity.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrUnsupportedEngine indicates an unknown Config.Engine value.
	ErrUnsupportedEngine = errors.NewStd("unsupported database engine")
)

// closedError reports use of a closed handle
func closedError(operation, table string) error {
	return errors.New(ErrClosed).
		Component("datastore").
		Category(errors.CategoryState).
		Context("operation", operation).
		Context("table", table).
		Build()
}

// dbError wraps a driver failure, keeping the driver error reachable.
// Unique constraint violations additionally match ErrDuplicateKey.
func dbError(err error, operation, table string) error {
	if isDuplicateKey(err) {
		return errors.Newf("%s %s: %w: %w", operation, table, ErrDuplicateKey, err).
			Component("datastore").
			Category(errors.CategoryConflict).
			Context("operation", operation).
			Context("table", table).
			Build()
	}
	return errors.Newf("%s %s: %w", operation, table, err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("table", table).
		Build()
}

// MySQL server error numbers
const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// isDuplicateKey recognizes translated and raw unique-constraint errors
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isLocked reports busy or lock wait failures
func isLocked(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout || myErr.Number == mysqlDeadlockDetected
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// errorType gives a short metrics label for err
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrClosed):
		return "closed"
	case isDuplicateKey(err):
		return "duplicate_key"
	case isLocked(err):
		return "locked"
	default:
		return "other"
	}
}
