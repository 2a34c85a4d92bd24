package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/realtime"
	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// MessageHandler implements store-and-forward direct messages. A message
// is persisted first and then pushed to the recipient's live connections
// through the hub; an offline recipient simply reads it from the store
// later. Live delivery reuses the same targeted-send primitive the
// exchange flow uses.
type MessageHandler struct {
	Messages *repository.MessageRepo
	Users    *repository.UserRepo
	Hub      *realtime.Hub
}

func NewMessageHandler(messages *repository.MessageRepo, users *repository.UserRepo, hub *realtime.Hub) *MessageHandler {
	if messages == nil || users == nil || hub == nil {
		panic("nil dependency passed to NewMessageHandler")
	}
	return &MessageHandler{Messages: messages, Users: users, Hub: hub}
}

type sendMessageReq struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

// Send handles POST /v1/messages.
func (h *MessageHandler) Send(c echo.Context) error {
	sender, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body sendMessageReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	recipient := repository.NormalizeUsername(body.Recipient)
	text := strings.TrimSpace(body.Body)
	if recipient == "" || text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "recipient and body required"})
	}
	if recipient == sender {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot message yourself"})
	}

	ctx := c.Request().Context()
	ok, err := h.Users.Exists(ctx, recipient)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup recipient failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "recipient not found"})
	}

	msg := model.Message{Sender: sender, Recipient: recipient, Body: text}
	if err := h.Messages.Create(ctx, &msg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store message failed"})
	}

	// Best-effort live push; an offline recipient misses the event and
	// finds the message in the store.
	h.Hub.Send(recipient, realtime.EventMessageReceived, echo.Map{
		"id":         msg.ID,
		"sender":     msg.Sender,
		"body":       msg.Body,
		"created_at": msg.CreatedAt.UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"id":         msg.ID,
		"recipient":  msg.Recipient,
		"created_at": msg.CreatedAt,
	})
}

// Conversation handles GET /v1/messages/:username — the caller's thread
// with one other user, oldest first, optional ?limit=.
func (h *MessageHandler) Conversation(c echo.Context) error {
	caller, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	other := repository.NormalizeUsername(c.Param("username"))
	if other == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid username"})
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	msgs, err := h.Messages.ListConversation(c.Request().Context(), caller, other, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load conversation failed"})
	}
	out := make([]echo.Map, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, echo.Map{
			"id":         m.ID,
			"sender":     m.Sender,
			"recipient":  m.Recipient,
			"body":       m.Body,
			"created_at": m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}
