package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/internal/service"
)

// ContextUserKey is the gin context key storing the authenticated principal.
const ContextUserKey = "currentUser"

type userLookup interface {
	Get(ctx context.Context, email string) (*models.User, error)
}

// Authenticator resolves bearer access tokens into request principals.
// It never rejects a request: every failure leaves the request unauthenticated.
// Audit rows name a subject only when the token signature verified.
type Authenticator struct {
	tokens  *service.TokenService
	users   userLookup
	audit   *service.SecurityAuditService
	metrics *service.MetricsService
	logger  *zap.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens *service.TokenService, users userLookup, audit *service.SecurityAuditService, metrics *service.MetricsService, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{tokens: tokens, users: users, audit: audit, metrics: metrics, logger: logger}
}

// Handler attaches the principal, if any, and always continues the chain.
func (a *Authenticator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal := a.resolve(c); principal != nil {
			c.Set(ContextUserKey, principal)
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context) (principal *models.Principal) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("authentication panicked", zap.Any("panic", r), zap.String("path", c.Request.URL.Path))
			a.rejectInvalid(c, "", service.TokenReasonMalformed)
			principal = nil
		}
	}()

	raw := bearerToken(c.GetHeader("Authorization"))
	if raw == "" {
		return nil
	}

	if a.tokens.IsExpired(raw) {
		claims, err := a.tokens.Peek(raw)
		if err != nil {
			a.rejectInvalid(c, "", service.TokenFailureReason(a.tokens.Verify(raw)))
			return nil
		}
		subject := models.AuditSubjectUnknown
		if service.TokenFailureReason(a.tokens.Verify(raw)) == service.TokenReasonExpired {
			subject = claims.Subject
		}
		a.metrics.RecordExpiredToken()
		a.audit.Record(c.Request.Context(), models.AuditExpiredTokenAttempt, subject, "", c.ClientIP())
		return nil
	}

	if err := a.tokens.Verify(raw); err != nil {
		a.rejectInvalid(c, "", service.TokenFailureReason(err))
		return nil
	}

	email, err := a.tokens.SubjectOf(raw)
	if err != nil {
		a.rejectInvalid(c, "", service.TokenReasonMalformed)
		return nil
	}
	if !a.tokens.IsAccessType(raw) {
		a.rejectInvalid(c, email, service.TokenReasonWrongType)
		return nil
	}

	user, err := a.users.Get(c.Request.Context(), email)
	if err != nil {
		a.logger.Warn("failed to load user for token", zap.String("email", email), zap.Error(err))
		return nil
	}
	if user == nil || !user.Active() || user.Email != email {
		a.logger.Warn("user not found or disabled", zap.String("email", email))
		return nil
	}
	return models.PrincipalFromUser(user)
}

func (a *Authenticator) rejectInvalid(c *gin.Context, subject, reason string) {
	a.metrics.RecordInvalidToken(reason)
	a.audit.Record(c.Request.Context(), models.AuditInvalidTokenAttempt, subject, reason, c.ClientIP())
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PrincipalFrom returns the authenticated principal, or nil.
func PrincipalFrom(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	principal, ok := value.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
