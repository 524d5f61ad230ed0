package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/internal/service"
	appErrors "github.com/noah-isme/estate-auth-api/pkg/errors"
	"github.com/noah-isme/estate-auth-api/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest, ip string) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest, ip string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, req models.RefreshTokenRequest, ip string) (*models.AuthResponse, error)
	Logout(ctx context.Context, email, ip string) error
	ChangePassword(ctx context.Context, email string, req models.ChangePasswordRequest, ip string) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Register godoc
// @Summary Register account
// @Description Create a USER or AGENT account and issue a token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Failure 429 {object} response.ErrorBody
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Refresh godoc
// @Summary Refresh token pair
// @Description Exchange the current refresh token for a new token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the stored refresh token
// @Tags Authentication
// @Security BearerAuth
// @Success 200
// @Failure 401 {object} response.ErrorBody
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		writeError(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Logout(c.Request.Context(), principal.Email, c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}

	response.OK(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for the current user and revoke its refresh token
// @Tags Authentication
// @Security BearerAuth
// @Accept json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 200
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		writeError(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), principal.Email, req, c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}

	response.OK(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated principal
// @Tags Authentication
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Principal
// @Failure 401 {object} response.ErrorBody
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		writeError(c, appErrors.ErrUnauthorized)
		return
	}

	response.JSON(c, http.StatusOK, principal)
}

// writeError renders err and adds Retry-After for lockouts and throttling.
func writeError(c *gin.Context, err error) {
	var locked *service.AccountLockedError
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &locked) && locked.RetryAfterSeconds > 0:
		c.Header("Retry-After", strconv.FormatInt(locked.RetryAfterSeconds, 10))
	case errors.As(err, &limited) && limited.RetryAfterSeconds > 0:
		c.Header("Retry-After", strconv.FormatInt(limited.RetryAfterSeconds, 10))
	}
	response.Error(c, err)
}
