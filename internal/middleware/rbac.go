package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/user"
)

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: route(..., RequireRoles(user.RoleBuyer))
func RequireRoles(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, err := Caller(c)
			if err != nil {
				return err
			}
			if err := access.HasRole(caller, roles...).Err(); err != nil {
				return err
			}
			return next(c)
		}
	}
}
