package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/service"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps an error to a status code, a stable code string and a
// message that is safe to show to clients.
func classify(err error) (int, string, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, "REQUEST_ERROR", fe.Message

	case errors.Is(err, ledger.ErrDuplicateActivity):
		return fiber.StatusConflict, "ACTIVITY_ALREADY_COMPLETED", "Activity already completed"
	case errors.Is(err, ledger.ErrDuplicateBadge):
		return fiber.StatusConflict, "BADGE_ALREADY_EARNED", "Badge already earned"
	case errors.Is(err, ledger.ErrInsufficientTokens):
		return fiber.StatusPreconditionFailed, "INSUFFICIENT_TOKENS", "Insufficient tokens"
	case errors.Is(err, ledger.ErrValidation):
		return fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error()

	case errors.Is(err, service.ErrDuplicateEmail):
		return fiber.StatusConflict, "EMAIL_TAKEN", "User already exists with this email"
	case errors.Is(err, service.ErrTelegramLinked):
		return fiber.StatusConflict, "TELEGRAM_LINKED", "Telegram account already linked"
	case errors.Is(err, service.ErrConcurrentUpdate):
		return fiber.StatusConflict, "CONCURRENT_UPDATE", err.Error()
	case errors.Is(err, service.ErrConstraintViolation):
		return fiber.StatusUnprocessableEntity, "CONSTRAINT_VIOLATION", "Request rejected by a data constraint"

	case errors.Is(err, service.ErrUserNotFound):
		return fiber.StatusNotFound, "USER_NOT_FOUND", "User not found"
	case errors.Is(err, service.ErrActivityNotFound):
		return fiber.StatusNotFound, "ACTIVITY_NOT_FOUND", "Activity not found"
	case errors.Is(err, service.ErrPerkNotFound):
		return fiber.StatusNotFound, "PERK_NOT_FOUND", "Perk not found"
	case errors.Is(err, service.ErrBadgeNotFound):
		return fiber.StatusNotFound, "BADGE_NOT_FOUND", "Badge not found"

	case errors.Is(err, service.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"
	case errors.Is(err, service.ErrUnauthorized):
		return fiber.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token"

	case errors.Is(err, service.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Service temporarily unavailable"
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
}

// ErrorHandler writes every error returned by a handler as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, code, msg := classify(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(status).JSON(errorResponse{
		Error: errorBody{Code: code, Message: msg},
	})
}
