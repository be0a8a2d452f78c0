package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/respond"
)

type Handler struct {
	users Store
}

func NewHandler(users Store) *Handler {
	return &Handler{users: users}
}

// GetPublicProfile handles GET /api/users/:id
func (h *Handler) GetPublicProfile(c echo.Context) error {
	u, err := h.users.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("load profile", err)
	}
	return respond.OK(c, http.StatusOK, echo.Map{"user": u.Profile()})
}
