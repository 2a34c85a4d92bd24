package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireRole restricts a route to callers whose "role" claim matches one
// of the given values.  JWTAuth must run earlier in the chain: it stores
// the role from the verified token under the "role" context key.  Every
// registered member carries the MEMBER role, so community routes pass
// RequireRole("MEMBER", "ADMIN") and admin-only routes just "ADMIN".
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]struct{}, len(roles))
    for _, r := range roles {
        allowed[r] = struct{}{}
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get("role").(string)
            if !ok {
                // No role in context means JWTAuth never ran or the token
                // carried no role claim; either way the caller is anonymous.
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            if _, ok := allowed[role]; !ok {
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
