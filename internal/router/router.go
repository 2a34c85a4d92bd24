package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/community-resource-hub/internal/handler"
	"github.com/iliyamo/community-resource-hub/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check used by load balancers and the
// Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers all authentication-related routes.  Unauthenticated
// operations live under /v1/auth, while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotating refresh: revokes the presented token and issues a new pair.
	g.POST("/refresh", a.Refresh)
	// Non-rotating variant: fresh access token, same refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a refresh token in the body (single session) or
	// a bearer token (all sessions), so it lives outside the JWT group.
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("MEMBER", "ADMIN"))
	auth.GET("/me", a.Me)
}

// RegisterRealtime registers the websocket upgrade endpoint. The handler
// authenticates the token itself (query param), so no JWT middleware here.
func RegisterRealtime(e *echo.Echo, ws *handler.WSHandler) {
	e.GET("/v1/ws", ws.Serve)
}

// RegisterCommunity registers the authenticated community API: balances,
// the transfer request lifecycle, direct messages and the online user
// directory.
func RegisterCommunity(e *echo.Echo, jwtSecret string, ledger *handler.LedgerHandler, exchange *handler.ExchangeHandler, messages *handler.MessageHandler, presence *handler.PresenceHandler) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("MEMBER", "ADMIN"))

	g.GET("/resources", ledger.Balances)

	g.POST("/exchange/requests", exchange.Create)
	g.GET("/exchange/requests", exchange.List)
	g.POST("/exchange/requests/:id/approve", exchange.Approve)
	g.POST("/exchange/requests/:id/reject", exchange.Reject)
	g.DELETE("/exchange/requests/:id", exchange.Withdraw)

	g.POST("/messages", messages.Send)
	g.GET("/messages/:username", messages.Conversation)

	g.GET("/users/online", presence.Online)
}
