package handler // handler defines http handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/community-resource-hub/internal/repository"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
// JWT numeric claims decode as float64, so several representations are
// accepted.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getUsername extracts the authenticated identity from echo.Context. The
// claim was normalized at issue time but is normalized again here so the
// rest of the system can rely on the invariant.
func getUsername(c echo.Context) (string, error) {
	if v, ok := c.Get("username").(string); ok {
		if u := repository.NormalizeUsername(v); u != "" {
			return u, nil
		}
	}
	return "", errors.New("invalid username in context")
}
