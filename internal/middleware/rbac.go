package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/munlink-zambales/claimdesk-api/internal/models"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
	"github.com/munlink-zambales/claimdesk-api/pkg/response"
)

// RequireRoles lets through callers whose token carries one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff admits municipal admins and platform admins.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleMunicipalAdmin, models.RoleAdmin, models.RoleSuperAdmin)
}

func claimsFrom(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}
