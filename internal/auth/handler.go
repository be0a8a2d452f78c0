package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/respond"
	"github.com/sudo-init-do/bidhub/internal/user"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /api/auth/register
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.Validation("Please provide name, email, password, and role")
	}

	u, token, err := h.svc.Register(c.Request().Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     user.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return respond.Token(c, http.StatusCreated, token, echo.Map{"user": u})
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.Validation("Please provide email and password")
	}

	u, token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond.Token(c, http.StatusOK, token, echo.Map{"user": u})
}

// Me handles GET /api/auth/me
func (h *Handler) Me(c echo.Context) error {
	u, ok := c.Get("user").(*user.User)
	if !ok || u == nil {
		return apperr.Unauthenticated("You are not logged in. Please log in to get access.")
	}
	return respond.OK(c, http.StatusOK, echo.Map{"user": u})
}
