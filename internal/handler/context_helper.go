package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/estate-auth-api/internal/middleware"
	"github.com/noah-isme/estate-auth-api/internal/models"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.PrincipalFrom(c)
}
