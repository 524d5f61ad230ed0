package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/estate-auth-api/internal/models"
	appErrors "github.com/noah-isme/estate-auth-api/pkg/errors"
	"github.com/noah-isme/estate-auth-api/pkg/response"
)

type accountService interface {
	SetAccountStatus(ctx context.Context, actor *models.Principal, req models.AccountStatusRequest, ip string) (*models.User, error)
	DeleteAccount(ctx context.Context, actor *models.Principal, email, ip string) error
}

type securityEventLister interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]models.SecurityEvent, error)
}

// AccountHandler exposes administrative account endpoints.
type AccountHandler struct {
	service accountService
	events  securityEventLister
}

// NewAccountHandler builds a new handler. events may be nil when audit persistence is off.
func NewAccountHandler(svc accountService, events securityEventLister) *AccountHandler {
	return &AccountHandler{service: svc, events: events}
}

// SetStatus godoc
// @Summary Enable, disable, lock or unlock an account
// @Tags Administration
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.AccountStatusRequest true "Status payload"
// @Success 200 {object} models.User
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /admin/users/status [patch]
func (h *AccountHandler) SetStatus(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		writeError(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.AccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	user, err := h.service.SetAccountStatus(c.Request.Context(), principal, req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user)
}

// Delete godoc
// @Summary Delete an account
// @Tags Administration
// @Security BearerAuth
// @Param email path string true "Account email"
// @Success 200
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /admin/users/{email} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		writeError(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteAccount(c.Request.Context(), principal, c.Param("email"), c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}

	response.OK(c)
}

// AuditTrail godoc
// @Summary List recorded security events for a subject
// @Tags Administration
// @Security BearerAuth
// @Produce json
// @Param subject query string true "Subject email"
// @Param limit query int false "Maximum events"
// @Success 200 {array} models.SecurityEvent
// @Failure 400 {object} response.ErrorBody
// @Failure 503 {object} response.ErrorBody
// @Router /admin/audit [get]
func (h *AccountHandler) AuditTrail(c *gin.Context) {
	if h.events == nil {
		writeError(c, appErrors.New("AUDIT_DISABLED", http.StatusServiceUnavailable, "audit persistence is disabled"))
		return
	}

	subject := strings.ToLower(strings.TrimSpace(c.Query("subject")))
	if subject == "" {
		writeError(c, appErrors.Clone(appErrors.ErrValidation, "subject is required"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	events, err := h.events.ListBySubject(c.Request.Context(), subject, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []models.SecurityEvent{}
	}

	response.JSON(c, http.StatusOK, events)
}
