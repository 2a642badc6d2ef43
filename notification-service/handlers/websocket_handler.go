package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"familyportal-backend/notification-service/middleware"
	"familyportal-backend/notification-service/services"
)

type WebSocketHandler struct {
	hub *services.Hub
	log *zap.Logger
}

func NewWebSocketHandler(hub *services.Hub, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, log: log}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Live notification channel. Pass the JWT as the token query parameter.
// @Tags notifications
// @Param token query string true "JWT"
// @Router /ws/notifications [get]
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing token"})
		return
	}

	// Upgrade writes its own HTTP error response on failure
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// Stats godoc
// @Summary Live connection count and connected users
// @Tags notifications
// @Produce json
// @Param X-Internal-Token header string true "Internal API token"
// @Success 200 {object} map[string]interface{}
// @Router /ws/stats [get]
func (h *WebSocketHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": h.hub.ConnectionCount(),
		"users":       h.hub.ConnectedUsers(),
	})
}
