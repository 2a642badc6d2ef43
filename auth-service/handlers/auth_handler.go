package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"familyportal-backend/auth-service/middleware"
	"familyportal-backend/auth-service/services"
	"familyportal-backend/shared/database/models"
)

type AuthHandler struct {
	logins *services.LoginService
	log    *zap.Logger
}

func NewAuthHandler(logins *services.LoginService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{logins: logins, log: log}
}

// Login Request/Response structs
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"mom@family.test"`
	Password string `json:"password" binding:"required" example:"correct horse"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
}

func toUserInfo(u *models.User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		Status:      u.Status,
	}
}

// POST /api/auth/login
// @Summary Member login
// @Description Authenticate a family member. Requires a verified portal session cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param login body LoginRequest true "Login credentials"
// @Success 200 {object} handlers.LoginResponse "Successful login"
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 401 {object} map[string]interface{} "Invalid credentials"
// @Failure 403 {object} map[string]interface{} "Portal verification required"
// @Failure 429 {object} map[string]interface{} "Too many login attempts"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.logins.Login(c.Request.Context(), c.ClientIP(), req.Email, req.Password)
	if err != nil {
		var loginErr *services.LoginError
		switch {
		case errors.As(err, &loginErr) && errors.Is(err, services.ErrLockedOut):
			c.JSON(http.StatusTooManyRequests, middleware.BlockedResponse(loginErr.Status))
		case errors.As(err, &loginErr):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":         "Invalid credentials",
				"attempts_left": loginErr.Status.AttemptsLeft,
			})
		default:
			h.log.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login is temporarily unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserInfo(result.User),
	})
}

// GET /api/auth/me
// @Summary Current user
// @Description Return the account behind the bearer token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} handlers.UserInfo
// @Failure 401 {object} map[string]string "User not authenticated"
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	user, err := h.logins.GetUser(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}
		h.log.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	c.JSON(http.StatusOK, toUserInfo(user))
}
