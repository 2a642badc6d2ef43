// Package docs Family Portal API documentation
package docs

// Swagger documentation info
// @title Family Portal API
// @version 1.0
// @description Portal entry gate, member login and notification delivery for the family portal

// @host localhost:8001
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

// Auth Service Endpoints
// @tag.name security
// @tag.description Security-question portal gate
// @tag.name security-admin
// @tag.description Security question administration
// @tag.name auth
// @tag.description Member login

// Notification Service Endpoints
// @tag.name notifications
// @tag.description In-app feed, dispatch and digest
// @tag.name preferences
// @tag.description Per-type email and push preferences
// @tag.name push
// @tag.description Web push subscriptions
