package alerts

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/middleware"
	"github.com/sudo-init-do/bidhub/internal/respond"
)

type Handler struct {
	inbox NotificationStore
}

func NewHandler(inbox NotificationStore) *Handler {
	return &Handler{inbox: inbox}
}

// ListNotifications handles GET /api/notifications
func (h *Handler) ListNotifications(c echo.Context) error {
	u, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	items, err := h.inbox.List(c.Request().Context(), u.ID)
	if err != nil {
		return apperr.Internal("list notifications", err)
	}
	return respond.List(c, len(items), echo.Map{"notifications": items})
}

// MarkNotificationRead handles PATCH /api/notifications/:id/read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	u, err := middleware.CurrentUser(c)
	if err != nil {
		return err
	}
	if err := h.inbox.MarkRead(c.Request().Context(), c.Param("id"), u.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Notification not found or already read")
		}
		return apperr.Internal("mark notification read", err)
	}
	return respond.OK(c, http.StatusOK, echo.Map{"id": c.Param("id")})
}
