package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-tracker/internal/api/http/handlers"
	"github.com/spec-kit/issue-tracker/internal/auth"
	"github.com/spec-kit/issue-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The "/isssue" spelling is the published
// API contract and is kept as-is.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	userGroup := app.Group("/user")
	userGroup.Post("", cfg.Users.Register)
	userGroup.Get("/list", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Users.List)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)

	issueGroup := app.Group("/isssue", cfg.AuthMiddleware.Handle, auth.RequireRole())
	issueGroup.Post("", cfg.Issues.Create)
	issueGroup.Get("", cfg.Issues.List)
	issueGroup.Get("/:id", cfg.Issues.Get)
	issueGroup.Put("/:id", cfg.Issues.Update)
	issueGroup.Patch("/:id/status", cfg.Issues.TransitionStatus)
}
