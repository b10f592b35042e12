package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/staylink/verification-service/internal/api/http/handlers"
	"github.com/staylink/verification-service/internal/auth"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Partner        *handlers.PartnerHandler
	Host           *handlers.HostHandler
	Operator       *handlers.OperatorHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Auth.Register)
	authGroup.Post("/users/login", cfg.Auth.Login)
	authGroup.Post("/staff/login", cfg.Auth.StaffLogin)

	partner := app.Group("/partner", cfg.AuthMiddleware.Handle, auth.RequireUser())
	partner.Get("/verification", cfg.Partner.GetVerification)
	partner.Post("/verification/identity", cfg.Partner.SubmitIdentity)

	host := app.Group("/host", cfg.AuthMiddleware.Handle, auth.RequireUser())
	host.Post("/properties", cfg.Host.RegisterProperty)
	host.Get("/properties", cfg.Host.ListProperties)
	host.Get("/properties/:id/verification", cfg.Host.GetVerification)
	host.Post("/properties/:id/documents/:kind", cfg.Host.SubmitGroup)
	host.Put("/properties/:id/listing", cfg.Host.ToggleListing)
	host.Put("/properties/:id/onboarding", cfg.Host.CompleteOnboarding)
	host.Post("/properties/:id/edits", cfg.Host.RecordEdit)

	operator := app.Group("/operator", cfg.AuthMiddleware.Handle,
		auth.RequireOperatorRole(domain.OperatorRoleReviewer, domain.OperatorRoleAdmin))
	operator.Get("/review-queue", cfg.Operator.ReviewQueue)
	operator.Get("/subjects/:id", cfg.Operator.GetSubject)
	operator.Get("/subjects/:id/history", cfg.Operator.History)
	operator.Put("/subjects/:id/groups/:kind/status", cfg.Operator.DecideGroup)
	operator.Put("/properties/:id/status", cfg.Operator.SetOverallStatus)
	operator.Delete("/properties/:id/status", cfg.Operator.ClearOverride)

	if cfg.Realtime != nil {
		app.Get("/ws/verification", cfg.AuthMiddleware.Handle, cfg.Realtime.Upgrade, cfg.Realtime.Serve())
	}
}
