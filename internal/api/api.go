// Package api provides the HTTP API.
package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"telco-rewards/internal/config"
	"telco-rewards/internal/service"
)

// HealthFunc reports the health of a dependency, such as the database pool.
type HealthFunc func(ctx context.Context) (map[string]any, error)

// Deps holds everything the API needs.
type Deps struct {
	Config      *config.Config
	Auth        *service.AuthService
	Profile     *service.ProfileService
	Progression *service.ProgressionService
	Leaderboard *service.LeaderboardService
	Health      HealthFunc
	Version     string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg         *config.Config
	auth        *service.AuthService
	profile     *service.ProfileService
	progression *service.ProgressionService
	leaderboard *service.LeaderboardService
	health      HealthFunc
	version     string
}

// NewServer creates a new Server instance.
func NewServer(d Deps) *Server {
	return &Server{
		cfg:         d.Config,
		auth:        d.Auth,
		profile:     d.Profile,
		progression: d.Progression,
		leaderboard: d.Leaderboard,
		health:      d.Health,
		version:     d.Version,
	}
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "TelcoRewards API",
		ErrorHandler: ErrorHandler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	})

	app.Use(recover.New())
	app.Use(RequestLogger())

	origins := "*"
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		origins = strings.Join(s.cfg.Server.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	s.routes(app)
	return app
}

func (s *Server) routes(app *fiber.App) {
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", s.handleRegister)
	auth.Post("/login", s.handleLogin)
	auth.Post("/logout", s.RequireAuth(), s.handleLogout)
	auth.Post("/refresh", s.RequireAuth(), s.handleRefresh)
	auth.Get("/me", s.RequireAuth(), s.handleMe)

	users := api.Group("/users", s.RequireAuth())
	users.Put("/profile", s.handleUpdateProfile)
	users.Delete("/account", s.handleDeleteAccount)
	users.Get("/badges", s.handleListBadges)
	users.Post("/badges", s.handleAddBadge)
	users.Get("/activities", s.handleListActivities)
	users.Post("/activities", s.handleCompleteActivity)
	users.Post("/activities/:id/finish", s.handleFinishActivity)
	users.Get("/perks", s.handleListPerks)
	users.Post("/perks", s.handleRedeemPerk)
	users.Put("/streak", s.handleStreak)
	users.Get("/ledger", s.handleLedger)

	api.Get("/leaderboard", s.OptionalAuth(), s.handleLeaderboard)
	api.Get("/leaderboard/position", s.handlePosition)

	cat := api.Group("/catalog")
	cat.Get("/activities", s.handleCatalogActivities)
	cat.Get("/perks", s.handleCatalogPerks)
	cat.Get("/badges", s.handleCatalogBadges)

	admin := api.Group("/admin", s.RequireAuth(), s.RequireAdmin())
	admin.Post("/users/:id/badges", s.handleAdminAwardBadge)
}

// parseBody decodes the JSON request body into v.
func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}
