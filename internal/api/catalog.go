package api

import (
	"github.com/gofiber/fiber/v2"

	"telco-rewards/internal/catalog"
)

func (s *Server) handleCatalogActivities(c *fiber.Ctx) error {
	q, category := c.Query("q"), c.Query("category")
	if q == "" && category == "" {
		return c.JSON(fiber.Map{"activities": catalog.Activities()})
	}
	return c.JSON(fiber.Map{"activities": nonNil(catalog.SearchActivities(q, category))})
}

func (s *Server) handleCatalogPerks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"perks": catalog.Perks()})
}

func (s *Server) handleCatalogBadges(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"badges": catalog.Badges()})
}
