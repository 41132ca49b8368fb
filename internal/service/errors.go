package service

import (
	"errors"
	"fmt"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/repository"
)

// Common errors for service operations.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrActivityNotFound = errors.New("activity not found")
	ErrPerkNotFound     = errors.New("perk not found")
	ErrBadgeNotFound    = errors.New("badge not found")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("invalid or expired session")

	// ErrConcurrentUpdate is returned when an event kept losing the race
	// for the user's record and gave up.
	ErrConcurrentUpdate = errors.New("user is being updated concurrently, try again")

	ErrPerkUnavailable = fmt.Errorf("%w: perk is not available", ledger.ErrValidation)
)

// Storage and uniqueness errors are passed through from the repository so
// callers can classify them with errors.Is.
var (
	ErrStorageUnavailable  = repository.ErrStorageUnavailable
	ErrConstraintViolation = repository.ErrConstraintViolation
	ErrDuplicateEmail      = repository.ErrDuplicateEmail
	ErrTelegramLinked      = repository.ErrTelegramLinked
)

// invalidf builds a validation error for malformed requests.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ledger.ErrInvalidInput}, args...)...)
}

// mapStoreErr translates repository lookups into service errors.
func mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}
