package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cjsinari/marikiti-backend/services/common/auth"
	"github.com/gin-gonic/gin"
)

const (
	BuyerContextKey = "buyerID"
	RoleContextKey  = "role"
	AdminRole       = "admin"
	SellerRole      = "seller"
)

// BuyerIdentity resolves the caller from a Bearer token when a JWT secret is
// configured, otherwise from the X-User-ID header set by the API gateway.
func BuyerIdentity(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		role := c.GetHeader("X-User-Role")

		if header := c.GetHeader("Authorization"); parser.Enabled() && strings.HasPrefix(header, "Bearer ") {
			claims, err := parser.ParseAndValidateToken(strings.TrimPrefix(header, "Bearer "), "")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired token"})
				return
			}
			userID = auth.UserID(claims)
			if r, ok := claims["role"].(string); ok {
				role = r
			}
		}

		if userID == "" {
			userID = c.GetHeader("X-User-ID")
		}
		if userID == "" {
			if v, err := c.Cookie("user_id"); err == nil {
				userID = v
			}
		}

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "unauthorized"})
			return
		}

		c.Set(BuyerContextKey, userID)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}

// RequireRole lets through only callers holding one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "insufficient role"})
	}
}

func GetBuyerID(c *gin.Context) (string, error) {
	if val, ok := c.Get(BuyerContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errors.New("buyer ID not found in context")
}

func GetRole(c *gin.Context) string {
	if val, ok := c.Get(RoleContextKey); ok {
		if role, ok := val.(string); ok {
			return role
		}
	}
	return ""
}

// IsStaff reports whether the caller is a seller or an admin.
func IsStaff(c *gin.Context) bool {
	role := GetRole(c)
	return role == AdminRole || role == SellerRole
}
