// internal/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediscan-back/internal/auth"
	"mediscan-back/internal/models"
)

// Context keys set by AuthMiddleware.
const (
	CtxUserID = "userID"
	CtxUser   = "user"
	CtxRole   = "role"
)

// AuthMiddleware validates the bearer token and loads the active user record
// into the request context.
func AuthMiddleware(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid authorization header"})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Inactive user"})
			return
		}

		c.Set(CtxUserID, user.ID)
		c.Set(CtxUser, user)
		c.Set(CtxRole, user.Role)
		c.Next()
	}
}

// RequireRoles aborts with 403 unless the authenticated user holds one of the
// given roles. Admin always passes.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles)+1)
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	allowed[models.RoleAdmin] = struct{}{}

	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Not enough permissions"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user loaded by AuthMiddleware.
func CurrentUser(c *gin.Context) models.User {
	u, _ := c.Get(CtxUser)
	user, _ := u.(models.User)
	return user
}
