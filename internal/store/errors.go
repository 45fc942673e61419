package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// StoreError wraps a persistence failure with the operation that caused it.
// The underlying message is surfaced verbatim to the caller.
type StoreError struct {
	Op       string
	Conflict bool
	Cause    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	conflict := errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
	return &StoreError{Op: op, Conflict: conflict, Cause: err}
}
