package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("duplicate record")
)

// Error provides detailed error information for a failed store operation.
type Error struct {
	Op    string // Operation that failed
	Table string // Table involved
	Err   error  // Underlying error
}

func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("store: %s", e.Op)}
	if e.Table != "" {
		parts = append(parts, fmt.Sprintf("table=%s", e.Table))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap converts driver errors into *Error, mapping sql.ErrNoRows to
// ErrNotFound and unique violations to ErrConflict.
func wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// keep as-is so callers can test with errors.Is
	case isUniqueViolation(err):
		err = fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return &Error{Op: op, Table: table, Err: err}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
