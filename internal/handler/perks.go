package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/catalog"
	"telco-rewards/internal/ledger"
	"telco-rewards/internal/service"
)

// PerkHandler handles perk browsing and redemption.
type PerkHandler struct {
	profile     *service.ProfileService
	progression *service.ProgressionService
}

// NewPerkHandler creates a new PerkHandler.
func NewPerkHandler(profile *service.ProfileService, progression *service.ProgressionService) *PerkHandler {
	return &PerkHandler{
		profile:     profile,
		progression: progression,
	}
}

// HandlePerks handles the /perks command by showing the perk panel.
func (h *PerkHandler) HandlePerks(c tele.Context) error {
	u, ok := LinkedUser(c)
	if !ok {
		return nil
	}
	return c.Send(FormatPerkPanel(u.Tokens), BuildPerkPanel(catalog.Perks()))
}

// HandleRedeem handles /redeem <perk_id>.
func (h *PerkHandler) HandleRedeem(c tele.Context) error {
	u, ok := LinkedUser(c)
	if !ok {
		return nil
	}

	args := commandArgs(c.Text())
	if len(args) != 1 {
		return c.Reply("Usage: /redeem <perk_id>\nSee /perks for the list")
	}

	updated, err := h.progression.RedeemCatalogPerk(context.Background(), u.ID, args[0])
	if err != nil {
		return c.Reply(redeemFailure(err, u.ID, args[0]))
	}
	perk := updated.RedeemedPerks[len(updated.RedeemedPerks)-1]
	return c.Reply(fmt.Sprintf("✅ Redeemed %s!\n💰 Tokens left: %d", perk.PerkName, updated.Tokens))
}

// HandlePerkCallback handles the perk panel buttons.
func (h *PerkHandler) HandlePerkCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	u, ok := LinkedUser(c)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Link your account first with /link", ShowAlert: true})
	}

	data := strings.TrimPrefix(cb.Data, "\f")
	switch {
	case data == CallbackPerkRefresh || data == CallbackPerkCancel:
		return h.showPanel(c, u.ID)

	case strings.HasPrefix(data, CallbackPerkItem):
		perk, ok := catalog.Perk(strings.TrimPrefix(data, CallbackPerkItem))
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Perk not found"})
		}
		return c.Edit(FormatPerkDetail(perk, u.Tokens), BuildRedeemPanel(perk.ID))

	case strings.HasPrefix(data, CallbackPerkRedeem):
		perkID := strings.TrimPrefix(data, CallbackPerkRedeem)
		updated, err := h.progression.RedeemCatalogPerk(context.Background(), u.ID, perkID)
		if err != nil {
			return c.Respond(&tele.CallbackResponse{Text: redeemFailure(err, u.ID, perkID), ShowAlert: true})
		}
		_ = c.Respond(&tele.CallbackResponse{Text: "✅ Redeemed!"})
		return c.Edit(FormatPerkPanel(updated.Tokens), BuildPerkPanel(catalog.Perks()))
	}
	return nil
}

func (h *PerkHandler) showPanel(c tele.Context, userID string) error {
	u, err := h.profile.Profile(context.Background(), userID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Failed to load your balance", ShowAlert: true})
	}
	return c.Edit(FormatPerkPanel(u.Tokens), BuildPerkPanel(catalog.Perks()))
}

// redeemFailure turns a redemption error into a user-facing message.
func redeemFailure(err error, userID, perkID string) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientTokens):
		return "❌ Not enough tokens"
	case errors.Is(err, service.ErrPerkNotFound):
		return "❌ Unknown perk. See /perks"
	case errors.Is(err, service.ErrPerkUnavailable):
		return "❌ This perk is not available right now"
	case errors.Is(err, service.ErrConcurrentUpdate):
		return "⏳ Busy, please try again"
	}
	log.Error().Err(err).Str("user_id", userID).Str("perk", perkID).Msg("Perk redemption failed")
	return "❌ Redemption failed, please try again later"
}
