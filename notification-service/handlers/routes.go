package handlers

import (
	"github.com/gin-gonic/gin"

	"familyportal-backend/notification-service/middleware"
)

type Handlers struct {
	Feed        *FeedHandler
	Preferences *PreferenceHandler
	Push        *PushHandler
	Dispatch    *DispatchHandler
	WebSocket   *WebSocketHandler
}

// RegisterRoutes mounts the notification API. internalToken guards the
// service-to-service endpoints.
func RegisterRoutes(router gin.IRouter, h Handlers, internalToken string) {
	internal := middleware.RequireInternalToken(internalToken)
	user := middleware.RequireUser(false)

	api := router.Group("/api/notifications")
	{
		api.POST("/dispatch", internal, h.Dispatch.Dispatch)
		api.POST("/digest/run", internal, h.Dispatch.RunDigest)

		api.GET("/push/public-key", h.Push.PublicKey)

		authed := api.Group("", user)
		authed.GET("", h.Feed.GetNotifications)
		authed.PUT("/read-all", h.Feed.MarkAllAsRead)
		authed.PUT("/:id/read", h.Feed.MarkAsRead)
		authed.DELETE("/:id", h.Feed.DeleteNotification)

		authed.GET("/preferences", h.Preferences.GetPreferences)
		authed.PUT("/preferences", h.Preferences.UpdatePreferences)

		authed.POST("/push/subscribe", h.Push.Subscribe)
		authed.POST("/push/unsubscribe", h.Push.Unsubscribe)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/notifications", middleware.RequireUser(true), h.WebSocket.HandleWebSocket)
		ws.GET("/stats", internal, h.WebSocket.Stats)
	}
}
