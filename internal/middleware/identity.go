package middleware

// identity.go defines helper functions shared across middleware files.
// currentUserID pulls the identity placed in the Echo context by JWTAuth;
// the rate limiter uses it to key buckets per user. When no user is
// authenticated it falls back to "anon" so unauthenticated traffic shares
// one bucket per IP/route.

import (
	"github.com/labstack/echo/v4"
)

// currentUserID extracts a user identifier from the Echo context. It
// prefers the username claim (the identity key) and falls back to the
// numeric subject, returning "anon" when neither is present.
func currentUserID(c echo.Context) string {
	if v := c.Get("username"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon"
}
