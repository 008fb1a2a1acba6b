package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/support-chat/internal/auth"
	"github.com/suPer8Hu/support-chat/internal/common"
)

const (
	UserIDKey   = "user_id"
	UserRoleKey = "user_role"
)

// AuthRequired accepts a Bearer JWT and stores the caller's id and role on
// the context. Missing or bad tokens get 401.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			common.Abort(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		claims, err := auth.ParseJWT(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(UserRoleKey, claims.Role)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(UserRoleKey)
		if !auth.IsAdmin(role) {
			common.Abort(c, http.StatusForbidden, 40301, "admin access required")
			return
		}
		c.Next()
	}
}

// CustomerRequired must run after AuthRequired. Admins act through the
// admin routes, never as a customer.
func CustomerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(UserRoleKey) != auth.RoleCustomer {
			common.Abort(c, http.StatusForbidden, 40303, "customer access required")
			return
		}
		c.Next()
	}
}
