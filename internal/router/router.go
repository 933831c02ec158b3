package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencamp/slot-reservation/internal/handler"
	"github.com/opencamp/slot-reservation/internal/middleware"
	"github.com/opencamp/slot-reservation/internal/model"
)

// RegisterRoutes registers routes that do not require authentication:
// the health check, the Prometheus scrape endpoint and public
// availability browsing.
func RegisterRoutes(e *echo.Echo, browse *handler.BrowseHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/v1/events/:id/slots", browse.ListEventSlots)
}

// RegisterAuth registers the identity endpoints.  Register and login are
// open; /v1/me sits behind the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleOrganizer, model.RoleCamper))
	auth.GET("/me", a.Me)
}

// RegisterQueue registers the waiting-room endpoints.  Both require an
// authenticated camper; the rate limiter shapes the polling burst.
func RegisterQueue(e *echo.Echo, q *handler.QueueHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/queue")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleCamper))
	g.Use(limiter)
	g.POST("/:eventId/enter", q.Enter)
	g.GET("/:eventId/status", q.Status)
}

// RegisterReservations registers intake, cancellation and listing.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/reservations")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleCamper))
	g.Use(limiter)
	g.POST("", r.Create)
	g.DELETE("/:id", r.Cancel)
	g.GET("", r.ListMine)
}

// RegisterAdmin registers organizer-only event and slot management.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleOrganizer))
	g.POST("/events", a.CreateEvent)
	g.POST("/slots", a.CreateSlot)
}
