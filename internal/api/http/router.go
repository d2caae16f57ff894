package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saber-em-movimento/backend/internal/api/http/handlers"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Questions *handlers.QuestionsHandler
	Sessions  *auth.SessionValidator
	Users     auth.UserLoader
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/verify-user", cfg.Auth.VerifyUser)
	authGroup.Post("/reset-password", cfg.Auth.ResetPassword)
	authGroup.Get("/me", cfg.Sessions.Handle, cfg.Auth.Me)
	authGroup.Post("/password", cfg.Sessions.Handle, cfg.Auth.ChangePassword)
	authGroup.Post("/logout", cfg.Sessions.Handle, cfg.Auth.Logout)

	questions := api.Group("/questions")
	questions.Get("/", cfg.Sessions.Optional, cfg.Questions.List)
	questions.Get("/:id", cfg.Sessions.Optional, cfg.Questions.Get)
	questions.Post("/", cfg.Sessions.Handle, auth.RequireRole(cfg.Users, domain.RoleTeacher), cfg.Questions.Create)
	questions.Put("/:id", cfg.Sessions.Handle, cfg.Questions.Update)
	questions.Patch("/:id/visibility", cfg.Sessions.Handle, cfg.Questions.SetVisibility)
	questions.Delete("/:id", cfg.Sessions.Handle, cfg.Questions.Delete)
}
