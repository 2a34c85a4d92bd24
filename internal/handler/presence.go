package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/realtime"
)

// PresenceHandler exposes the in-memory presence registry read-only.
type PresenceHandler struct {
	Presence *realtime.Presence
}

func NewPresenceHandler(p *realtime.Presence) *PresenceHandler {
	if p == nil {
		panic("nil presence passed to NewPresenceHandler")
	}
	return &PresenceHandler{Presence: p}
}

// Online handles GET /v1/users/online: the usernames currently online,
// including those inside the offline grace window.
func (h *PresenceHandler) Online(c echo.Context) error {
	users := h.Presence.Online()
	return c.JSON(http.StatusOK, echo.Map{"count": len(users), "users": users})
}
