package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/access-ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/access-ticket-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/operator/login", cfg.Auth.Login)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireOperator())
	admin.Get("/status", cfg.Admin.Status)
	admin.Post("/flags/creation", cfg.Admin.ToggleCreation)
	admin.Post("/flags/bypass", cfg.Admin.ToggleBypass)

	admin.Get("/tickets", cfg.Admin.ListTickets)
	admin.Post("/tickets/:id/force-close", cfg.Admin.ForceClose)
	admin.Delete("/cooldowns/:userID", cfg.Admin.ClearCooldown)

	admin.Get("/catalog", cfg.Admin.ListCatalog)
	admin.Put("/catalog/:key", cfg.Admin.UpsertReward)
	admin.Delete("/catalog/:key", cfg.Admin.RemoveReward)

	admin.Get("/archive", cfg.Admin.ListArchive)
	admin.Get("/archive/:id", cfg.Admin.GetArchived)

	admin.Get("/metrics", cfg.Admin.Metrics)
}
