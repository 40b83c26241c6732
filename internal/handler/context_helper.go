package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Oliskey-School/School-app--sub008/internal/middleware"
	"github.com/Oliskey-School/School-app--sub008/internal/models"
)

// actorID is the user behind the request, or "" when JWT did not run or
// the claims carry no subject.
func actorID(c *gin.Context) string {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return ""
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil {
		return ""
	}
	return strings.TrimSpace(claims.UserID)
}
