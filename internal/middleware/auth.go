package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const (
	ctxUser   = "user"
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Authenticator resolves a bearer token to the user it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

// Authenticate requires a valid bearer token. When allowQuery is set the
// token may also arrive as ?token= (browsers cannot set headers on
// websocket upgrades).
func Authenticate(auth Authenticator, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" && allowQuery {
				token = c.QueryParam("token")
			}

			u, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return err
			}
			c.Set(ctxUser, u)
			c.Set(ctxUserID, u.ID)
			c.Set(ctxRole, string(u.Role))
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// CurrentUser returns the authenticated user set by Authenticate.
func CurrentUser(c echo.Context) (*user.User, error) {
	u, ok := c.Get(ctxUser).(*user.User)
	if !ok || u == nil {
		return nil, apperr.Unauthenticated("You are not logged in. Please log in to get access.")
	}
	return u, nil
}

func Caller(c echo.Context) (access.Caller, error) {
	u, err := CurrentUser(c)
	if err != nil {
		return access.Caller{}, err
	}
	return access.CallerOf(u), nil
}
