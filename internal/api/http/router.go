package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/api/http/handlers"
	"github.com/loopio/feedback-tracker/internal/auth"
	"github.com/loopio/feedback-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Feedback       *handlers.FeedbackHandler
	FeedbackQuery  *handlers.FeedbackQueryHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	protect := cfg.AuthMiddleware.Handle

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/forgotpassword", cfg.Auth.ForgotPassword)
	authGroup.Put("/resetpassword/:token", cfg.Auth.ResetPassword)
	authGroup.Get("/avatar/:userId", cfg.Auth.Avatar)

	authGroup.Get("/me", protect, cfg.Auth.Me)
	authGroup.Delete("/me", protect, cfg.Auth.DeleteMe)
	authGroup.Put("/profile", protect, cfg.Auth.UpdateProfile)
	authGroup.Put("/password", protect, cfg.Auth.ChangePassword)
	authGroup.Get("/developers", protect, cfg.Auth.Developers)
	authGroup.Get("/users", protect, cfg.Auth.Users)
	authGroup.Get("/users/all", protect, auth.RequireRole(domain.RoleAdmin), cfg.Auth.AllUsers)

	// Attachments are fetched by plain links, so they sit outside the guard.
	app.Get("/feedbacks/:id/attachment", cfg.FeedbackQuery.Attachment)

	feedbacks := app.Group("/feedbacks", protect)
	feedbacks.Get("/analytics", cfg.FeedbackQuery.Analytics)
	feedbacks.Get("/", cfg.FeedbackQuery.List)
	feedbacks.Post("/", cfg.Feedback.Create)
	feedbacks.Get("/:id", cfg.FeedbackQuery.Get)
	feedbacks.Put("/:id", cfg.Feedback.Update)
	feedbacks.Delete("/:id", cfg.Feedback.Delete)
	feedbacks.Post("/:id/comments", cfg.Feedback.AddComment)
	feedbacks.Delete("/:id/comments/:commentId", cfg.Feedback.DeleteComment)

	notifications := app.Group("/notifications", protect)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Delete("/", cfg.Notifications.ClearAll)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)
}
