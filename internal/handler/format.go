// Package handler provides Telegram bot command handlers.
package handler

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/model"
	"telco-rewards/internal/service"
)

const divider = "━━━━━━━━━━━━━━━"

// Callback data prefixes for the perk panel.
const (
	CallbackPerkItem    = "perk_item:"
	CallbackPerkRedeem  = "perk_redeem:"
	CallbackPerkCancel  = "perk_cancel"
	CallbackPerkRefresh = "perk_refresh"
)

var medals = []string{"🥇", "🥈", "🥉"}

// commandArgs splits the text after a command into fields.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return fields
	}
	return fields[1:]
}

// FormatProfile renders a user's progression summary.
func FormatProfile(u *model.User, position int) string {
	var b strings.Builder
	b.WriteString("📊 Your TelcoRewards\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "👤 %s\n", u.Name)
	fmt.Fprintf(&b, "💰 Tokens: %d\n", u.Tokens)
	fmt.Fprintf(&b, "⭐ Level %d (%d XP)\n", u.Level, u.XP)
	fmt.Fprintf(&b, "🔥 Streak: %d day(s)\n", u.Streak)
	fmt.Fprintf(&b, "🏅 Badges: %d\n", len(u.Badges))
	fmt.Fprintf(&b, "🎮 Activities completed: %d\n", len(u.CompletedActivities))
	if position > 0 {
		fmt.Fprintf(&b, "🏆 Rank: #%d\n", position)
	}
	b.WriteString(divider)
	return b.String()
}

// FormatSummary renders a profile followed by the latest journal entries.
func FormatSummary(sum *service.Summary) string {
	out := FormatProfile(sum.User, sum.Position)
	if len(sum.Recent) == 0 {
		return out
	}

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n🧾 Recent\n")
	for _, e := range sum.Recent {
		label := e.Kind
		if e.Reference != "" {
			label += " " + e.Reference
		}
		fmt.Fprintf(&b, "%+d tokens, %+d XP · %s\n", e.Tokens, e.XP, label)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCheckIn renders the result of a daily check-in.
func FormatCheckIn(res *service.CheckInResult) string {
	msg := fmt.Sprintf("✅ Checked in! Streak: %d day(s)", res.Streak)
	for _, badge := range res.NewBadges {
		msg += fmt.Sprintf("\n%s New badge: %s", badge.Icon, badge.Name)
	}
	return msg
}

// FormatLeaderboard renders a page of standings.
func FormatLeaderboard(entries []*model.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "📊 No rankings yet"
	}

	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n")
	b.WriteString(divider + "\n")
	for _, e := range entries {
		rank := fmt.Sprintf("%d.", e.Position)
		if e.Position >= 1 && e.Position <= len(medals) {
			rank = medals[e.Position-1]
		}
		fmt.Fprintf(&b, "%s %s: %d tokens (Lv %d)\n", rank, e.Name, e.Tokens, e.Level)
	}
	b.WriteString(divider)
	return b.String()
}

// FormatTopEarners renders today's top earners.
func FormatTopEarners(ranks []*model.EarnerRank) string {
	if len(ranks) == 0 {
		return "📊 Nobody has earned tokens today yet"
	}

	var b strings.Builder
	b.WriteString("📈 Today's top earners\n")
	b.WriteString(divider + "\n")
	for i, r := range ranks {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fmt.Fprintf(&b, "%s %s: +%d\n", rank, r.Name, r.Earned)
	}
	b.WriteString(divider)
	return b.String()
}

// FormatPerkPanel renders the perk panel header.
func FormatPerkPanel(balance int64) string {
	return "🎁 Perks\n" + divider + "\n" +
		fmt.Sprintf("💰 Your balance: %d tokens\n", balance) +
		divider + "\n" +
		"Tap a perk to see details:"
}

// FormatPerkDetail renders a single perk.
func FormatPerkDetail(p model.Perk, balance int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 %s\n", p.Name)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "%s\n", p.Description)
	fmt.Fprintf(&b, "💰 Cost: %d tokens\n", p.Cost)
	if p.ValidUntil != "" {
		fmt.Fprintf(&b, "📅 Valid until: %s\n", p.ValidUntil)
	}
	if p.Availability != "" {
		fmt.Fprintf(&b, "📦 Availability: %s\n", p.Availability)
	}
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "Your balance: %d tokens", balance)
	return b.String()
}

// BuildPerkPanel creates the inline keyboard listing perks, two per row.
func BuildPerkPanel(perks []model.Perk) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var current []tele.Btn
	for i, p := range perks {
		current = append(current, markup.Data(
			fmt.Sprintf("%s (%d💰)", p.Name, p.Cost),
			CallbackPerkItem+p.ID,
		))
		if len(current) == 2 || i == len(perks)-1 {
			rows = append(rows, markup.Row(current...))
			current = nil
		}
	}
	rows = append(rows, markup.Row(markup.Data("🔄 Refresh", CallbackPerkRefresh)))

	markup.Inline(rows...)
	return markup
}

// BuildRedeemPanel creates the confirmation keyboard for a perk.
func BuildRedeemPanel(perkID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Redeem", CallbackPerkRedeem+perkID),
		markup.Data("❌ Cancel", CallbackPerkCancel),
	))
	return markup
}
