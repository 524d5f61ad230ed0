package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/internal/service"
	appErrors "github.com/noah-isme/estate-auth-api/pkg/errors"
	"github.com/noah-isme/estate-auth-api/pkg/response"
)

// RequireAuth aborts with 401 when the Authenticator attached no principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalFrom(c) == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireRole admits principals holding one of roles.
func RequireRole(audit *service.SecurityAuditService, roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return guard(audit, func(p *models.Principal) bool {
		_, ok := allowed[p.Role]
		return ok
	})
}

// RequirePermission admits principals whose role grants permission.
func RequirePermission(audit *service.SecurityAuditService, permission models.Permission) gin.HandlerFunc {
	return guard(audit, func(p *models.Principal) bool {
		return p.Role.Can(permission)
	})
}

func guard(audit *service.SecurityAuditService, allow func(*models.Principal) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFrom(c)
		if principal == nil {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if !allow(principal) {
			audit.Record(c.Request.Context(), models.AuditAccessDenied, principal.Email, c.Request.Method+" "+c.FullPath(), c.ClientIP())
			response.Abort(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}
