package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"familyportal-backend/shared/clients"
	"familyportal-backend/shared/database/models/notification"
)

// Dispatcher starts a background fan-out
type Dispatcher interface {
	Dispatch(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload)
}

// DigestRunner runs one digest sweep
type DigestRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// DispatchHandler is the service-to-service entry point
type DispatchHandler struct {
	dispatcher Dispatcher
	digest     DigestRunner
	log        *zap.Logger
}

func NewDispatchHandler(dispatcher Dispatcher, digest DigestRunner, log *zap.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, digest: digest, log: log}
}

// Dispatch godoc
// @Summary Dispatch an event to recipients
// @Description Stores the feed rows and delivers push and email in the background
// @Tags notifications
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Internal API token"
// @Param request body clients.DispatchRequest true "Event"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /notifications/dispatch [post]
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var request clients.DispatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if !request.Type.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown notification type", "type": request.Type})
		return
	}

	h.dispatcher.Dispatch(c.Request.Context(), request.UserIDs, request.Type, request.Payload)
	h.log.Debug("notification dispatched",
		zap.String("type", string(request.Type)),
		zap.Int("recipients", len(request.UserIDs)))

	c.JSON(http.StatusAccepted, gin.H{"accepted": true, "recipients": len(request.UserIDs)})
}

// RunDigest godoc
// @Summary Run the email digest
// @Description Sends the digest for the trailing window now
// @Tags notifications
// @Produce json
// @Param X-Internal-Token header string true "Internal API token"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /notifications/digest/run [post]
func (h *DispatchHandler) RunDigest(c *gin.Context) {
	sent, err := h.digest.Run(c.Request.Context(), time.Now())
	if err != nil {
		h.log.Error("digest run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Digest run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
