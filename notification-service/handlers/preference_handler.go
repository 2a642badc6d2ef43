package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"familyportal-backend/notification-service/middleware"
	"familyportal-backend/notification-service/services"
)

type PreferenceHandler struct {
	prefs *services.PreferenceService
	log   *zap.Logger
}

func NewPreferenceHandler(prefs *services.PreferenceService, log *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, log: log}
}

// UpdatePreferencesRequest is the body of PUT /notifications/preferences
type UpdatePreferencesRequest struct {
	Preferences []services.PreferenceInput `json:"preferences" binding:"required,dive"`
}

// GetPreferences godoc
// @Summary Get preferences
// @Description Email and push settings for every notification type
// @Tags preferences
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /notifications/preferences [get]
func (h *PreferenceHandler) GetPreferences(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	views, err := h.prefs.Get(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("failed to load preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"preferences": views})
}

// UpdatePreferences godoc
// @Summary Update preferences
// @Description Upserts the given types in one transaction
// @Tags preferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param preferences body UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /notifications/preferences [put]
func (h *PreferenceHandler) UpdatePreferences(c *gin.Context) {
	var request UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	userID, _ := middleware.UserID(c)

	views, err := h.prefs.Update(c.Request.Context(), userID, request.Preferences)
	if errors.Is(err, services.ErrInvalidNotificationType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("failed to update preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"preferences": views})
}
