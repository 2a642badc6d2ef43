package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"familyportal-backend/notification-service/middleware"
	"familyportal-backend/notification-service/services"
)

type PushHandler struct {
	subs      *services.SubscriptionService
	publicKey string
	log       *zap.Logger
}

func NewPushHandler(subs *services.SubscriptionService, publicKey string, log *zap.Logger) *PushHandler {
	return &PushHandler{subs: subs, publicKey: publicKey, log: log}
}

// SubscribeRequest mirrors the browser's PushSubscription.toJSON()
type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// PublicKey godoc
// @Summary VAPID public key
// @Tags push
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /notifications/push/public-key [get]
func (h *PushHandler) PublicKey(c *gin.Context) {
	if h.publicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.publicKey})
}

// Subscribe godoc
// @Summary Register push subscription
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param subscription body SubscribeRequest true "Subscription"
// @Success 201 {object} notification.PushSubscription
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /notifications/push/subscribe [post]
func (h *PushHandler) Subscribe(c *gin.Context) {
	var request SubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription", "details": err.Error()})
		return
	}
	userID, _ := middleware.UserID(c)

	sub, err := h.subs.Subscribe(c.Request.Context(), userID, services.SubscriptionInput{
		Endpoint:  request.Endpoint,
		P256dh:    request.Keys.P256dh,
		Auth:      request.Keys.Auth,
		UserAgent: c.Request.UserAgent(),
	})
	if errors.Is(err, services.ErrInvalidSubscription) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("failed to store push subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// Unsubscribe godoc
// @Summary Remove push subscription
// @Tags push
// @Accept json
// @Security BearerAuth
// @Param subscription body UnsubscribeRequest true "Endpoint"
// @Success 204
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /notifications/push/unsubscribe [post]
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	var request UnsubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Endpoint is required"})
		return
	}
	userID, _ := middleware.UserID(c)

	removed, err := h.subs.Unsubscribe(c.Request.Context(), userID, request.Endpoint)
	if err != nil {
		h.log.Error("failed to remove push subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsubscribe"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
