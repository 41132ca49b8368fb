package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"telco-rewards/internal/service"
)

func (s *Server) handleLeaderboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page, err := s.leaderboard.Top(ctx, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"leaderboard": page.Entries,
		"pagination": fiber.Map{
			"limit":   page.Limit,
			"offset":  page.Offset,
			"total":   page.Total,
			"hasMore": page.HasMore,
		},
		"userPosition": nil,
	}

	if id := currentUserID(c); id != "" {
		st, err := s.leaderboard.Position(ctx, id)
		switch {
		case err == nil:
			resp["userPosition"] = st
		case !errors.Is(err, service.ErrUserNotFound):
			return err
		}
	}
	return c.JSON(resp)
}

func (s *Server) handlePosition(c *fiber.Ctx) error {
	id := c.Query("userId")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "User ID is required")
	}
	st, err := s.leaderboard.Position(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(st)
}
