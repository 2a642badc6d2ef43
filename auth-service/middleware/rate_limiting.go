package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"familyportal-backend/shared/utils/ratelimit"
)

// GateMiddleware refuses clients that are currently blocked for action. It only
// reads the counter; handlers record failures themselves.
func GateMiddleware(limiter *ratelimit.Limiter, action string, maxAttempts int) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := limiter.Check(c.Request.Context(), c.ClientIP(), action, maxAttempts)
		if err != nil {
			zap.L().Error("attempt gate check failed", zap.String("action", action), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to verify request limits"})
			c.Abort()
			return
		}

		if status.Blocked() {
			c.JSON(http.StatusTooManyRequests, BlockedResponse(status))
			c.Abort()
			return
		}

		c.Set("gateStatus", status)
		c.Next()
	}
}

// BlockedResponse is the body sent with every 429 from the gate
func BlockedResponse(status ratelimit.Status) gin.H {
	return gin.H{
		"error":         "Too many attempts. Please try again later.",
		"blocked":       true,
		"blocked_until": status.BlockedUntil,
		"attempts_left": 0,
	}
}
