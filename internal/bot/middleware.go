// Package bot provides middleware for the Telegram bot.
package bot

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/handler"
	"telco-rewards/internal/model"
	"telco-rewards/internal/service"
)

const linkHint = "🔗 Link your TelcoRewards account first: send /link <email> <password> in a private chat with me"

// AccountLookup resolves a Telegram user to a linked account.
type AccountLookup interface {
	UserByTelegram(ctx context.Context, telegramID int64) (*model.User, error)
}

// LinkedAccountMiddleware loads the sender's linked account into the
// context under handler.UserKey. Senders without a linked account get a
// hint and the handler is skipped.
func LinkedAccountMiddleware(accounts AccountLookup) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			u, err := accounts.UserByTelegram(context.Background(), sender.ID)
			if err != nil {
				if !errors.Is(err, service.ErrUserNotFound) {
					log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Failed to resolve linked account")
					return respond(c, "❌ Service unavailable, please try again later")
				}
				return respond(c, linkHint)
			}

			c.Set(handler.UserKey, u)
			return next(c)
		}
	}
}

// respond answers callbacks with an alert and messages with a reply.
func respond(c tele.Context, text string) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
	}
	return c.Reply(text)
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("telegram_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			// Message text may carry /link credentials.
			logEvent.
				Str("command", commandName(c.Text())).
				Msg("Received message")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("❌ Internal error, please try again later")
				}
			}()
			return next(c)
		}
	}
}

// commandName returns the leading /command of a message, if any.
func commandName(text string) string {
	if text == "" || text[0] != '/' {
		return ""
	}
	for i, r := range text {
		if r == ' ' || r == '\n' || r == '@' {
			return text[:i]
		}
	}
	return text
}
