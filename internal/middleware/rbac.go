package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Oliskey-School/School-app--sub008/internal/models"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
	"github.com/Oliskey-School/School-app--sub008/pkg/response"
)

// RequireRoles admits requests whose claims carry one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return authorize("", roles)
}

// RequireRolesOrSelf also admits the user whose ID equals the path
// parameter param, whatever their role. Roster teacher IDs are user IDs, so
// a teacher may read their own records.
func RequireRolesOrSelf(param string, roles ...models.UserRole) gin.HandlerFunc {
	return authorize(param, roles)
}

func authorize(selfParam string, roles []models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[models.UserRole(strings.ToUpper(string(r)))] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		user, ok := claims.(*models.JWTClaims)
		if !ok || user == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[models.UserRole(strings.ToUpper(string(user.Role)))]; ok {
			c.Next()
			return
		}
		if selfParam != "" && user.UserID != "" && c.Param(selfParam) == user.UserID {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
