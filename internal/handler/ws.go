package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/config"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// upgrader performs the HTTP→websocket upgrade. Origin checking is left to
// the deployment's reverse proxy, matching how the HTTP API trusts its
// edge for CORS.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated clients to a live event channel and
// feeds connection open/close into the presence registry.
type WSHandler struct {
	Cfg      config.Config
	Presence *realtime.Presence
	Users    *repository.UserRepo
}

func NewWSHandler(cfg config.Config, presence *realtime.Presence, users *repository.UserRepo) *WSHandler {
	return &WSHandler{Cfg: cfg, Presence: presence, Users: users}
}

// Serve handles GET /v1/ws. Browsers cannot set an Authorization header on
// a websocket dial, so the access token arrives as a `token` query
// parameter and is verified here rather than by the JWT middleware.
func (h *WSHandler) Serve(c echo.Context) error {
	username, err := h.identityFromToken(c.QueryParam("token"))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return nil
	}

	conn := realtime.NewConn(username, ws)
	h.Presence.ConnectionOpened(username, conn)

	// Mirror the in-memory transition in the durable record. Best-effort:
	// the registry is authoritative while the process lives.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := h.Users.SetOnline(ctx, username); err != nil {
		log.Printf("ws: online write-through for %s failed: %v", username, err)
	}
	cancel()

	go conn.WritePump()
	go conn.ReadPump(func() {
		h.Presence.ConnectionClosed(username, conn)
	})
	return nil
}

// identityFromToken validates the HS256 access token and returns the
// normalized username claim.
func (h *WSHandler) identityFromToken(raw string) (string, error) {
	if raw == "" {
		return "", echo.ErrUnauthorized
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(h.Cfg.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return "", echo.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.ErrUnauthorized
	}
	username, _ := claims["username"].(string)
	username = repository.NormalizeUsername(username)
	if username == "" {
		return "", echo.ErrUnauthorized
	}
	return username, nil
}
