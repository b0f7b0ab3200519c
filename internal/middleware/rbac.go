package middleware

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advanced-filters-api/internal/models"
	appErrors "github.com/noah-isme/advanced-filters-api/pkg/errors"
	"github.com/noah-isme/advanced-filters-api/pkg/response"
)

// RequireRoles lets the request through only for the listed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := mapset.NewSet(roles...)
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !allowed.Contains(claims.Role) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff admits users with access to the admin site.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleSuperAdmin, models.RoleStaff)
}
