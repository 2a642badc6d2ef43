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
	utils "familyportal-backend/shared/utils/auth"
)

// CookieSettings controls the portal verification cookie
type CookieSettings struct {
	Name   string
	Secure bool
}

type SecurityHandler struct {
	portal *services.PortalService
	cookie CookieSettings
	log    *zap.Logger
}

func NewSecurityHandler(portal *services.PortalService, cookie CookieSettings, log *zap.Logger) *SecurityHandler {
	return &SecurityHandler{portal: portal, cookie: cookie, log: log}
}

type QuestionResponse struct {
	Question     *services.QuestionPrompt `json:"question"`
	AttemptsLeft int                      `json:"attempts_left"`
}

type VerifyRequest struct {
	Answers map[string]string `json:"answers"`
}

type VerifyResponse struct {
	Verified     bool       `json:"verified"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AttemptsLeft *int       `json:"attempts_left,omitempty"`
}

type ReorderRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

// GET /api/auth/security/question
// @Summary Get a security question
// @Description Returns one active question chosen at random, or the block status when locked out
// @Tags security
// @Produce json
// @Success 200 {object} handlers.QuestionResponse
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Failure 503 {object} map[string]string "No questions configured"
// @Router /auth/security/question [get]
func (h *SecurityHandler) GetQuestion(c *gin.Context) {
	status, prompt, err := h.portal.NextQuestion(c.Request.Context(), c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrNoActiveQuestions) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No security questions are configured"})
			return
		}
		h.log.Error("failed to load security question", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load security question"})
		return
	}

	if status.Blocked() {
		c.JSON(http.StatusTooManyRequests, middleware.BlockedResponse(status))
		return
	}

	c.JSON(http.StatusOK, QuestionResponse{Question: prompt, AttemptsLeft: status.AttemptsLeft})
}

// POST /api/auth/security/verify
// @Summary Verify security answers
// @Description All answers must match. Success sets the portal session cookie.
// @Tags security
// @Accept json
// @Produce json
// @Param answers body VerifyRequest true "Answers keyed by question id"
// @Success 200 {object} handlers.VerifyResponse
// @Failure 400 {object} map[string]string "No answers submitted"
// @Failure 401 {object} handlers.VerifyResponse "Wrong answer"
// @Failure 429 {object} map[string]interface{} "Too many attempts"
// @Router /auth/security/verify [post]
func (h *SecurityHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ip := c.ClientIP()
	result, err := h.portal.Verify(c.Request.Context(), ip, req.Answers)
	if err != nil {
		if errors.Is(err, services.ErrNoAnswers) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "At least one answer is required"})
			return
		}
		h.log.Error("security verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification is temporarily unavailable"})
		return
	}

	if result.Verified {
		token, expiresAt, err := utils.GeneratePortalToken(ip)
		if err != nil {
			h.log.Error("failed to issue portal token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start portal session"})
			return
		}

		h.setPortalCookie(c, token, int(time.Until(expiresAt).Seconds()))
		c.JSON(http.StatusOK, VerifyResponse{Verified: true, ExpiresAt: &expiresAt})
		return
	}

	if result.Status.Blocked() {
		body := middleware.BlockedResponse(result.Status)
		body["verified"] = false
		c.JSON(http.StatusTooManyRequests, body)
		return
	}

	left := result.Status.AttemptsLeft
	c.JSON(http.StatusUnauthorized, VerifyResponse{Verified: false, AttemptsLeft: &left})
}

// GET /api/auth/security/status
// @Summary Portal verification status
// @Description Reports whether this browser holds a valid portal session and the remaining attempt budget
// @Tags security
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/security/status [get]
func (h *SecurityHandler) Status(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		if claims, err := utils.ValidatePortalToken(token); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"verified":   true,
				"expires_at": claims.ExpiresAt.Time,
			})
			return
		}
	}

	status, err := h.portal.Status(c.Request.Context(), c.ClientIP())
	if err != nil {
		h.log.Error("failed to read gate status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read verification status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":      false,
		"blocked":       status.Blocked(),
		"blocked_until": status.BlockedUntil,
		"attempts_left": status.AttemptsLeft,
	})
}

// POST /api/auth/security/logout
// @Summary End portal session
// @Tags security
// @Success 204
// @Router /auth/security/logout [post]
func (h *SecurityHandler) Logout(c *gin.Context) {
	h.setPortalCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *SecurityHandler) setPortalCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

// GET /api/auth/security/questions
// @Summary List security questions
// @Tags security-admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} auth.SecurityQuestion
// @Failure 403 {object} map[string]string "Admin access required"
// @Router /auth/security/questions [get]
func (h *SecurityHandler) ListQuestions(c *gin.Context) {
	questions, err := h.portal.ListQuestions(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list questions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list questions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": questions})
}

// POST /api/auth/security/questions
// @Summary Create security question
// @Tags security-admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param question body services.QuestionInput true "Question"
// @Success 201 {object} auth.SecurityQuestion
// @Failure 400 {object} map[string]string "Question and answer are required"
// @Router /auth/security/questions [post]
func (h *SecurityHandler) CreateQuestion(c *gin.Context) {
	var req services.QuestionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.portal.CreateQuestion(c.Request.Context(), req)
	if err != nil {
		h.questionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// PUT /api/auth/security/questions/:id
// @Summary Update security question
// @Tags security-admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Param question body services.QuestionInput true "Fields to change"
// @Success 200 {object} auth.SecurityQuestion
// @Failure 404 {object} map[string]string "Question not found"
// @Router /auth/security/questions/{id} [put]
func (h *SecurityHandler) UpdateQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID format"})
		return
	}

	var req services.QuestionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.portal.UpdateQuestion(c.Request.Context(), id, req)
	if err != nil {
		h.questionError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// DELETE /api/auth/security/questions/:id
// @Summary Delete security question
// @Tags security-admin
// @Security BearerAuth
// @Param id path string true "Question ID"
// @Success 204
// @Failure 404 {object} map[string]string "Question not found"
// @Router /auth/security/questions/{id} [delete]
func (h *SecurityHandler) DeleteQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID format"})
		return
	}

	if err := h.portal.DeleteQuestion(c.Request.Context(), id); err != nil {
		h.questionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/auth/security/questions/reorder
// @Summary Reorder security questions
// @Description Assigns display order by list position in one transaction
// @Tags security-admin
// @Accept json
// @Security BearerAuth
// @Param order body ReorderRequest true "Question ids in display order"
// @Success 204
// @Failure 400 {object} map[string]string "Invalid list"
// @Failure 404 {object} map[string]string "Unknown question id"
// @Router /auth/security/questions/reorder [put]
func (h *SecurityHandler) ReorderQuestions(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.portal.ReorderQuestions(c.Request.Context(), req.IDs); err != nil {
		h.questionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SecurityHandler) questionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidQuestion), errors.Is(err, services.ErrInvalidReorder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("security question operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update security questions"})
	}
}
