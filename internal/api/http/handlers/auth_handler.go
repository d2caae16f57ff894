package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/saber-em-movimento/backend/internal/api/dto"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/service"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

// AuthHandler exposes registration, login and secret management endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		FullName:   req.FullName,
		NationalID: req.NationalID,
		Role:       req.Role,
		BirthDate:  req.BirthDate,
		Secret:     req.Secret,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.RegisterResponse{UserID: res.UserID, Identifier: res.Identifier})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}

	res, err := h.auth.Login(c.UserContext(), service.LoginInput{
		Identifier: req.Identifier,
		NationalID: req.NationalID,
		Role:       req.Role,
		Secret:     req.Secret,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{
		UserID:     res.UserID,
		Token:      res.Token,
		ExpiresAt:  res.ExpiresAt,
		Role:       string(res.Role),
		FullName:   res.FullName,
		Identifier: res.Identifier,
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	user, err := h.auth.Me(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(dto.MeResponse{
		UserID:     user.ID,
		Role:       string(user.Role),
		FullName:   user.FullName,
		Identifier: user.Identifier,
	})
}

// VerifyUser handles POST /api/auth/verify-user.
func (h *AuthHandler) VerifyUser(c *fiber.Ctx) error {
	var req dto.VerifyUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	grant, err := h.auth.VerifyUserForReset(c.UserContext(), req.Identifier, req.BirthDate)
	if err != nil {
		return err
	}
	return c.JSON(dto.VerifyUserResponse{UserID: grant.UserID, ResetToken: grant.Token, ExpiresAt: grant.ExpiresAt})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.ResetToken, req.NewSecret); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChangePassword handles POST /api/auth/password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	if err := h.auth.ChangePassword(c.UserContext(), principal.UserID, req.CurrentSecret, req.NewSecret); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	if err := h.auth.Logout(c.UserContext(), principal.UserID, principal.Token); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func invalidPayload() error {
	return apperrors.NewValidationError("invalid_payload", "request body must be valid JSON")
}
