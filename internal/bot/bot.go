// Package bot provides the Telegram companion bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telco-rewards/internal/config"
	"telco-rewards/internal/handler"
	"telco-rewards/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	// Handlers
	accountHandler *handler.AccountHandler
	rankingHandler *handler.RankingHandler
	perkHandler    *handler.PerkHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config      *config.Config
	Auth        *service.AuthService
	Profile     *service.ProfileService
	Progression *service.ProgressionService
	Leaderboard *service.LeaderboardService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: deps.Config.Bot.PollTimeout},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		accountHandler: handler.NewAccountHandler(deps.Auth, deps.Profile, deps.Progression, deps.Leaderboard),
		rankingHandler: handler.NewRankingHandler(deps.Leaderboard),
		perkHandler:    handler.NewPerkHandler(deps.Profile, deps.Progression),
	}

	b.registerMiddleware()
	b.registerHandlers(deps.Profile)

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers(accounts AccountLookup) {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/help", b.accountHandler.HandleStart)
	b.bot.Handle("/link", b.accountHandler.HandleLink)
	b.bot.Handle("/top", b.accountHandler.HandleTop)
	b.bot.Handle("/daily_top", b.rankingHandler.HandleDailyTop)

	// Commands that act on the sender's account
	linked := b.bot.Group()
	linked.Use(LinkedAccountMiddleware(accounts))
	linked.Handle("/me", b.accountHandler.HandleMe)
	linked.Handle("/checkin", b.accountHandler.HandleCheckIn)
	linked.Handle("/perks", b.perkHandler.HandlePerks)
	linked.Handle("/redeem", b.perkHandler.HandleRedeem)
	linked.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 adds a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	if strings.HasPrefix(data, "perk_") {
		return b.perkHandler.HandlePerkCallback(c)
	}
	return c.Respond()
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
