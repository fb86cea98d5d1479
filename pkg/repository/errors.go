package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	mysqlDeadlock        = 1213
	pgDeadlock           = "40P01"
	pgSerializationError = "40001"
)

// IsRetryable reports whether the database aborted the transaction to break
// a deadlock or a serialization conflict. Such a transaction can be rerun.
func IsRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDeadlock || pgErr.Code == pgSerializationError
	}
	return false
}
