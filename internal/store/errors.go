package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// UniquenessError reports a write rejected by a uniqueness constraint that a
// record type declares on one of its fields (users.name, tokens.token,
// api_keys.key_hash). Enforcement is atomic at write time inside the
// database; the driver error is preserved as the cause and otherwise passed
// through unmodified.
type UniquenessError struct {
	Field string
	Err   error
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("duplicate value for unique field %q: %v", e.Field, e.Err)
}

func (e *UniquenessError) Unwrap() error { return e.Err }

// mysqlDupEntry is the MySQL error number for ER_DUP_ENTRY.
const mysqlDupEntry = 1062

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// uniqueViolation maps driver-specific unique-constraint errors onto a
// UniquenessError for the named field. Any other error passes through.
func uniqueViolation(err error, field string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &UniquenessError{Field: field, Err: err}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDupEntry {
		return &UniquenessError{Field: field, Err: err}
	}

	// modernc.org/sqlite reports constraint failures by message only.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &UniquenessError{Field: field, Err: err}
	}

	return err
}
