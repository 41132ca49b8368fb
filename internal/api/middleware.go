package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telco-rewards/internal/service"
)

const (
	localUserID = "user_id"
	localToken  = "token"
)

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid session token.
func (s *Server) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return service.ErrUnauthorized
		}
		claims, err := s.auth.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}
		c.Locals(localUserID, claims.UserID)
		c.Locals(localToken, token)
		return c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise lets the request through anonymously.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := bearerToken(c); token != "" {
			if claims, err := s.auth.Authenticate(c.UserContext(), token); err == nil {
				c.Locals(localUserID, claims.UserID)
				c.Locals(localToken, token)
			}
		}
		return c.Next()
	}
}

// RequireAdmin allows only callers whose email is in the admin list.
// It must run after RequireAuth.
func (s *Server) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := s.profile.Profile(c.UserContext(), currentUserID(c))
		if err != nil {
			return err
		}
		if !s.cfg.IsAdmin(u.Email) {
			log.Warn().Str("user_id", u.ID).Str("path", c.Path()).Msg("Admin access denied")
			return fiber.NewError(fiber.StatusForbidden, "Admin access required")
		}
		return c.Next()
	}
}

// RequestLogger logs every request once it has been handled.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _, _ = classify(err)
		}

		var ev *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error()
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		default:
			ev = log.Debug()
		}
		if id := currentUserID(c); id != "" {
			ev = ev.Str("user_id", id)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Msg("HTTP request")
		return err
	}
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func currentToken(c *fiber.Ctx) string {
	t, _ := c.Locals(localToken).(string)
	return t
}
