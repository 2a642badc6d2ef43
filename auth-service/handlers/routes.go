package handlers

import (
	"github.com/gin-gonic/gin"

	"familyportal-backend/auth-service/middleware"
	"familyportal-backend/auth-service/services"
	"familyportal-backend/shared/utils/ratelimit"
)

// RouteConfig wires the gate into the routes that consume attempts
type RouteConfig struct {
	Limiter    *ratelimit.Limiter
	Security   services.GateSettings
	Login      services.GateSettings
	CookieName string
}

// RegisterRoutes mounts every auth-service endpoint under /api/auth
func RegisterRoutes(router gin.IRouter, authHandler *AuthHandler, securityHandler *SecurityHandler, cfg RouteConfig) {
	api := router.Group("/api/auth")

	// Portal entry
	api.GET("/security/question", securityHandler.GetQuestion)
	api.POST("/security/verify",
		middleware.GateMiddleware(cfg.Limiter, ratelimit.ActionSecurity, cfg.Security.MaxAttempts),
		securityHandler.Verify)
	api.GET("/security/status", securityHandler.Status)
	api.POST("/security/logout", securityHandler.Logout)

	// Question administration
	admin := api.Group("/security/questions", middleware.AuthMiddleware(), middleware.RequireAdmin())
	admin.GET("", securityHandler.ListQuestions)
	admin.POST("", securityHandler.CreateQuestion)
	admin.PUT("/reorder", securityHandler.ReorderQuestions)
	admin.PUT("/:id", securityHandler.UpdateQuestion)
	admin.DELETE("/:id", securityHandler.DeleteQuestion)

	// Member login, only reachable from a verified portal session
	api.POST("/login",
		middleware.PortalVerifiedMiddleware(cfg.CookieName),
		middleware.GateMiddleware(cfg.Limiter, ratelimit.ActionLogin, cfg.Login.MaxAttempts),
		authHandler.Login)
	api.GET("/me", middleware.AuthMiddleware(), authHandler.Me)
}
