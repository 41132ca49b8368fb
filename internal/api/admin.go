package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"telco-rewards/internal/catalog"
	"telco-rewards/internal/service"
)

type adminBadgeRequest struct {
	BadgeID string `json:"badge_id"`
}

// handleAdminAwardBadge grants a catalog badge to any user.
func (s *Server) handleAdminAwardBadge(c *fiber.Ctx) error {
	var req adminBadgeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	badge, ok := catalog.Badge(req.BadgeID)
	if !ok {
		return service.ErrBadgeNotFound
	}

	target := c.Params("id")
	log.Info().
		Str("admin_id", currentUserID(c)).
		Str("target_id", target).
		Str("badge", badge.ID).
		Msg("Admin badge award")
	return s.awardBadge(c, target, badge)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":  "OK",
		"version": s.version,
	}
	if s.health != nil {
		stats, err := s.health(c.UserContext())
		if err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			resp["status"] = "DEGRADED"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		resp["database"] = stats
	}
	return c.JSON(resp)
}
