package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"familyportal-backend/shared/clients"
	utils "familyportal-backend/shared/utils/auth"
)

// RequireUser validates the member JWT from the Authorization header, or
// from the token query parameter when allowQuery is set. Browsers cannot set
// headers on websocket upgrades.
func RequireUser(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" && allowQuery {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid user ID in token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set("userID", userID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// RequireInternalToken guards service-to-service endpoints. An unset token
// rejects every call.
func RequireInternalToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(clients.InternalTokenHeader)
		if expected == "" || provided == "" || !utils.SecureCompare(provided, expected) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid internal token",
				"code":  "UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the caller set by RequireUser
func UserID(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get("userID")
	if !ok {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

func bearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
