package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/repository"
	"github.com/iliyamo/community-resource-hub/internal/service"
)

// ExchangeHandler exposes the transfer request lifecycle over HTTP. The
// handlers are thin: bind, pull the caller's identity from the JWT
// context, delegate to the exchange service, and translate its sentinel
// errors into status codes. A denied approval is deliberately a 200 — the
// request was processed; the denial travels in the body and as a
// request:denied event.
type ExchangeHandler struct {
	Exchange *service.ExchangeService
}

func NewExchangeHandler(ex *service.ExchangeService) *ExchangeHandler {
	if ex == nil {
		panic("nil service passed to NewExchangeHandler")
	}
	return &ExchangeHandler{Exchange: ex}
}

type createTransferReq struct {
	Counterparty string `json:"counterparty"`
	Kind         string `json:"kind"`
	Quantity     uint64 `json:"quantity"`
}

func transferJSON(req model.TransferRequest) echo.Map {
	return echo.Map{
		"id":           req.PublicID,
		"requester":    req.Requester,
		"counterparty": req.Counterparty,
		"kind":         string(req.Kind),
		"quantity":     req.Quantity,
		"created_at":   req.CreatedAt,
	}
}

// Create handles POST /v1/exchange/requests. The caller is the requester;
// the body names the counterparty, kind and quantity.
func (h *ExchangeHandler) Create(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createTransferReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	kind := model.ResourceKind(strings.ToUpper(strings.TrimSpace(body.Kind)))

	req, err := h.Exchange.Create(c.Request().Context(), username, body.Counterparty, kind, body.Quantity)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, transferJSON(req))
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "kind must be one of WATER/BREAD/MEDICINE and quantity must be positive"})
	case errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "counterparty not found"})
	case errors.Is(err, repository.ErrLedgerNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "counterparty has no ledger"})
	case errors.Is(err, repository.ErrInsufficientBalance):
		return c.JSON(http.StatusConflict, echo.Map{"error": "counterparty does not hold enough of that resource"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create request failed"})
	}
}

// Approve handles POST /v1/exchange/requests/:id/approve. Only the
// counterparty may approve. An insufficient re-checked balance consumes
// the request and reports the denial with a 200.
func (h *ExchangeHandler) Approve(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID := c.Param("id")

	req, err := h.Exchange.Approve(c.Request().Context(), requestID, username)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "settled", "request": transferJSON(req)})
	case errors.Is(err, repository.ErrInsufficientBalance):
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "denied",
			"reason":  "insufficient resources",
			"request": transferJSON(req),
		})
	case errors.Is(err, repository.ErrRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request already resolved or unknown"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the counterparty may approve"})
	case errors.Is(err, repository.ErrLedgerNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ledger not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "approve failed"})
	}
}

// Reject handles POST /v1/exchange/requests/:id/reject. Only the
// counterparty may reject; no balance moves.
func (h *ExchangeHandler) Reject(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID := c.Param("id")

	_, err = h.Exchange.Reject(c.Request().Context(), requestID, username)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "rejected"})
	case errors.Is(err, repository.ErrRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request already resolved or unknown"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the counterparty may reject"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reject failed"})
	}
}

// Withdraw handles DELETE /v1/exchange/requests/:id. Only the original
// requester may withdraw.
func (h *ExchangeHandler) Withdraw(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	requestID := c.Param("id")

	_, err = h.Exchange.Withdraw(c.Request().Context(), requestID, username)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "withdrawn"})
	case errors.Is(err, repository.ErrRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request already resolved or unknown"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the requester may withdraw"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "withdraw failed"})
	}
}

// List handles GET /v1/exchange/requests: pending requests involving the
// caller, either side, newest first.
func (h *ExchangeHandler) List(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reqs, err := h.Exchange.ListInvolving(c.Request().Context(), username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list requests failed"})
	}
	out := make([]echo.Map, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, transferJSON(r))
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": out})
}
