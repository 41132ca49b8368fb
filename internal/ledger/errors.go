package ledger

import (
	"errors"
	"fmt"
)

// ErrValidation is the class of client-correctable rejections. Every error
// produced by the rules engine matches it with errors.Is.
var ErrValidation = errors.New("validation failed")

// Rejection reasons.
var (
	ErrInvalidInput       = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrDuplicateActivity  = fmt.Errorf("%w: activity already completed", ErrValidation)
	ErrInsufficientTokens = fmt.Errorf("%w: insufficient tokens", ErrValidation)
	ErrDuplicateBadge     = fmt.Errorf("%w: badge already earned", ErrValidation)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
