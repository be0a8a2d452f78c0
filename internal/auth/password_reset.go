package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/respond"
)

const msgResetRequested = "If the email exists, a reset link has been sent."

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// ForgotPassword handles POST /api/auth/password/forgot. The response is
// the same whether or not the email is registered.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err == nil {
		h.svc.RequestPasswordReset(c.Request().Context(), req.Email)
	}
	return respond.Message(c, msgResetRequested)
}

// ResetPassword handles POST /api/auth/password/reset
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.Validation("Please provide token and newPassword")
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return respond.Message(c, "Password updated successfully")
}
