package api

import (
	"github.com/gofiber/fiber/v2"

	"telco-rewards/internal/catalog"
	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
	"telco-rewards/internal/service"
)

type badgeRequest struct {
	ID          string `json:"badge_id"`
	Name        string `json:"badge_name"`
	Description string `json:"badge_description"`
	Icon        string `json:"badge_icon"`
	Rarity      string `json:"badge_rarity"`
}

type activityRequest struct {
	ActivityID   string `json:"activity_id"`
	TokensEarned int64  `json:"tokens_earned"`
	XPEarned     int64  `json:"xp_earned"`
	Score        int64  `json:"score"`
	Perfect      bool   `json:"perfect"`
}

type finishRequest struct {
	Score   int64 `json:"score"`
	Perfect bool  `json:"perfect"`
}

type perkRequest struct {
	PerkID   string `json:"perk_id"`
	PerkName string `json:"perk_name"`
	Cost     int64  `json:"cost"`
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req service.ProfileInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := s.profile.UpdateProfile(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"user":    newUserResponse(u),
	})
}

func (s *Server) handleDeleteAccount(c *fiber.Ctx) error {
	if err := s.profile.DeleteAccount(c.UserContext(), currentUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Account deleted successfully"})
}

func (s *Server) handleListBadges(c *fiber.Ctx) error {
	u, err := s.profile.Profile(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"badges": nonNil(u.Badges)})
}

// toBadge builds the badge to award. Known badge ids take their catalog
// definition; unknown ids use the request fields.
func (r badgeRequest) toBadge() model.Badge {
	if b, ok := catalog.Badge(r.ID); ok {
		return b
	}
	return model.Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Icon:        r.Icon,
		Rarity:      model.Rarity(r.Rarity),
	}
}

func (s *Server) handleAddBadge(c *fiber.Ctx) error {
	var req badgeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.ID == "" || (req.Name == "" && !catalogHasBadge(req.ID)) {
		return fiber.NewError(fiber.StatusBadRequest, "Badge ID and name are required")
	}
	return s.awardBadge(c, currentUserID(c), req.toBadge())
}

func (s *Server) awardBadge(c *fiber.Ctx, userID string, badge model.Badge) error {
	u, err := s.progression.AwardBadge(c.UserContext(), userID, badge)
	if err != nil {
		return err
	}
	var earned model.Badge
	for _, b := range u.Badges {
		if b.ID == badge.ID {
			earned = b
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Badge added successfully",
		"badge":   earned,
	})
}

func (s *Server) handleListActivities(c *fiber.Ctx) error {
	u, err := s.profile.Profile(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"activities": nonNil(u.CompletedActivities)})
}

func (s *Server) handleCompleteActivity(c *fiber.Ctx) error {
	var req activityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := s.progression.RecordActivity(c.UserContext(), currentUserID(c),
		req.ActivityID, req.TokensEarned, req.XPEarned,
		ledger.Report{Score: req.Score, Perfect: req.Perfect})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(activityResponse(req.ActivityID, res))
}

func (s *Server) handleFinishActivity(c *fiber.Ctx) error {
	var req finishRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	id := c.Params("id")
	res, err := s.progression.FinishActivity(c.UserContext(), currentUserID(c), id, req.Score, req.Perfect)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(activityResponse(id, res))
}

func activityResponse(activityID string, res *service.ActivityResult) fiber.Map {
	return fiber.Map{
		"message": "Activity completed successfully",
		"user":    newUserResponse(res.User),
		"activity": fiber.Map{
			"activity_id":   activityID,
			"tokens_earned": res.Tokens,
			"xp_earned":     res.XP,
		},
		"leveledUp": res.LeveledUp,
		"newBadges": nonNil(res.NewBadges),
	}
}

func (s *Server) handleListPerks(c *fiber.Ctx) error {
	u, err := s.profile.Profile(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"perks": nonNil(u.RedeemedPerks)})
}

// handleRedeemPerk charges the catalog price for catalog perks and the
// requested cost for anything else.
func (s *Server) handleRedeemPerk(c *fiber.Ctx) error {
	var req perkRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var (
		u   *model.User
		err error
	)
	if _, ok := catalog.Perk(req.PerkID); ok {
		u, err = s.progression.RedeemCatalogPerk(c.UserContext(), currentUserID(c), req.PerkID)
	} else {
		u, err = s.progression.RedeemPerk(c.UserContext(), currentUserID(c), req.PerkID, req.PerkName, req.Cost)
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Perk redeemed successfully",
		"user":    newUserResponse(u),
		"perk":    u.RedeemedPerks[len(u.RedeemedPerks)-1],
	})
}

func (s *Server) handleStreak(c *fiber.Ctx) error {
	res, err := s.progression.CheckIn(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":   "Streak updated successfully",
		"user":      newUserResponse(res.User),
		"streak":    res.Streak,
		"newBadges": nonNil(res.NewBadges),
	})
}

func (s *Server) handleLedger(c *fiber.Ctx) error {
	entries, err := s.profile.History(c.UserContext(), currentUserID(c), c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": nonNil(entries)})
}

func catalogHasBadge(id string) bool {
	_, ok := catalog.Badge(id)
	return ok
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
