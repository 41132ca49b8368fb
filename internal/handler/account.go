package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/model"
	"telco-rewards/internal/service"
)

// UserKey is the telebot context key holding the linked *model.User.
const UserKey = "linked_user"

// LinkedUser returns the account linked to the sender, as stored by the
// bot's linked-account middleware.
func LinkedUser(c tele.Context) (*model.User, bool) {
	u, ok := c.Get(UserKey).(*model.User)
	return u, ok && u != nil
}

// AccountHandler handles account-related commands.
type AccountHandler struct {
	auth        *service.AuthService
	profile     *service.ProfileService
	progression *service.ProgressionService
	leaderboard *service.LeaderboardService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	auth *service.AuthService,
	profile *service.ProfileService,
	progression *service.ProgressionService,
	leaderboard *service.LeaderboardService,
) *AccountHandler {
	return &AccountHandler{
		auth:        auth,
		profile:     profile,
		progression: progression,
		leaderboard: leaderboard,
	}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if u, err := h.profile.UserByTelegram(context.Background(), sender.ID); err == nil {
		return c.Reply(fmt.Sprintf("👋 Welcome back, %s!\n\n💰 Tokens: %d\n\nUse /me, /checkin, /top, /perks", u.Name, u.Tokens))
	}

	return c.Reply("🎉 Welcome to TelcoRewards!\n\n" +
		"Link your account in a private chat with:\n" +
		"/link <email> <password>\n\n" +
		"Commands:\n" +
		"/me - your progress\n" +
		"/checkin - daily streak check-in\n" +
		"/top - leaderboard\n" +
		"/daily_top - today's top earners\n" +
		"/perks - browse perks\n" +
		"/redeem <perk_id> - redeem a perk")
}

// HandleLink handles /link <email> <password>. Private chats only.
func (h *AccountHandler) HandleLink(c tele.Context) error {
	sender, chat := c.Sender(), c.Chat()
	if sender == nil || chat == nil {
		return nil
	}
	if chat.Type != tele.ChatPrivate {
		return c.Reply("🔒 Please send /link in a private chat with the bot")
	}

	args := commandArgs(c.Text())
	if len(args) != 2 {
		return c.Reply("Usage: /link <email> <password>")
	}

	u, err := h.auth.LinkTelegram(context.Background(), args[0], args[1], sender.ID)
	switch {
	case err == nil:
		return c.Reply(fmt.Sprintf("✅ Linked to %s. Try /me", u.Name))
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Reply("❌ Invalid email or password")
	case errors.Is(err, service.ErrTelegramLinked):
		return c.Reply("❌ This Telegram account is already linked to another user")
	default:
		log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Failed to link telegram account")
		return c.Reply("❌ Linking failed, please try again later")
	}
}

// HandleMe handles the /me command.
func (h *AccountHandler) HandleMe(c tele.Context) error {
	u, ok := LinkedUser(c)
	if !ok {
		return nil
	}

	sum, err := h.profile.Summary(context.Background(), u.ID, 3)
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID).Msg("Failed to load profile summary")
		return c.Reply(FormatProfile(u, 0))
	}
	return c.Reply(FormatSummary(sum))
}

// HandleCheckIn handles the /checkin command.
func (h *AccountHandler) HandleCheckIn(c tele.Context) error {
	u, ok := LinkedUser(c)
	if !ok {
		return nil
	}

	res, err := h.progression.CheckIn(context.Background(), u.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID).Msg("Check-in failed")
		return c.Reply("❌ Check-in failed, please try again later")
	}
	return c.Reply(FormatCheckIn(res))
}

// HandleTop handles the /top command.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	page, err := h.leaderboard.Top(context.Background(), 10, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard")
		return c.Reply("❌ Failed to load the leaderboard, please try again later")
	}
	return c.Reply(FormatLeaderboard(page.Entries))
}
