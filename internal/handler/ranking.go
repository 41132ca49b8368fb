package handler

import (
	"context"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/service"
)

// RankingHandler handles ranking-related commands.
type RankingHandler struct {
	leaderboard *service.LeaderboardService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(leaderboard *service.LeaderboardService) *RankingHandler {
	return &RankingHandler{leaderboard: leaderboard}
}

// HandleDailyTop handles the /daily_top command.
// Displays the users who earned the most activity tokens today.
func (h *RankingHandler) HandleDailyTop(c tele.Context) error {
	ranks, err := h.leaderboard.TopEarnersToday(context.Background(), 10)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load today's earners")
		return c.Reply("❌ Failed to load rankings, please try again later")
	}
	return c.Reply(FormatTopEarners(ranks))
}
