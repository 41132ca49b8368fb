// Package repository provides data access layer implementations.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrTelegramLinked  = errors.New("telegram account already linked")

	// ErrVersionConflict means the user row changed after the caller read
	// it. Nothing was written; the caller may re-read and try again.
	ErrVersionConflict = errors.New("user version conflict")

	// ErrStorageUnavailable covers connection loss, timeouts and any driver
	// error that is not a constraint violation. Nothing is known to have
	// been written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConstraintViolation is a write the schema rejected: an integrity
	// violation (SQLSTATE class 23) with no more specific sentinel, or a
	// value the column cannot hold (class 22, e.g. an oversized string).
	ErrConstraintViolation = errors.New("constraint violation")
)

// Constraint names from the schema that map to their own sentinel.
const (
	constraintEmail    = "users_email_key"
	constraintTelegram = "users_telegram_id_key"
)

// classify wraps a driver error into one of the sentinel classes above while
// keeping the original error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.ConstraintName == constraintEmail:
			return ErrDuplicateEmail
		case pgErr.ConstraintName == constraintTelegram:
			return ErrTelegramLinked
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return fmt.Errorf("failed to %s: %w: %w", op, ErrVersionConflict, err)
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			return fmt.Errorf("failed to %s: %w: %w", op, ErrConstraintViolation, err)
		}
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}
