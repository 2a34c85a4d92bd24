package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/repository"
	"github.com/iliyamo/community-resource-hub/internal/service"
)

// LedgerHandler serves balance reads. There is no mutation endpoint:
// balances move only through approved transfer requests.
type LedgerHandler struct {
	Ledger *service.LedgerService
}

func NewLedgerHandler(l *service.LedgerService) *LedgerHandler {
	if l == nil {
		panic("nil service passed to NewLedgerHandler")
	}
	return &LedgerHandler{Ledger: l}
}

// Balances handles GET /v1/resources: the caller's own balances, every
// kind present, in the stable kind order.
func (h *LedgerHandler) Balances(c echo.Context) error {
	username, err := getUsername(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	balances, err := h.Ledger.Balances(c.Request().Context(), username)
	if err != nil {
		if errors.Is(err, repository.ErrLedgerNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ledger not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load balances failed"})
	}
	out := make(map[string]uint64, len(model.ResourceKinds))
	for _, kind := range model.ResourceKinds {
		out[string(kind)] = balances[kind]
	}
	return c.JSON(http.StatusOK, echo.Map{"username": username, "balances": out})
}
