package docs

import "github.com/swaggo/swag"

// Regenerate with `swag init -g docs/swagger.go` after changing annotations.

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/security/question": {"get": {"tags": ["security"], "summary": "Get a security question"}},
        "/auth/security/verify": {"post": {"tags": ["security"], "summary": "Verify security answers"}},
        "/auth/security/status": {"get": {"tags": ["security"], "summary": "Portal verification status"}},
        "/auth/security/logout": {"post": {"tags": ["security"], "summary": "End portal session"}},
        "/auth/security/questions": {
            "get": {"tags": ["security-admin"], "summary": "List security questions", "security": [{"BearerAuth": []}]},
            "post": {"tags": ["security-admin"], "summary": "Create security question", "security": [{"BearerAuth": []}]}
        },
        "/auth/security/questions/reorder": {"put": {"tags": ["security-admin"], "summary": "Reorder security questions", "security": [{"BearerAuth": []}]}},
        "/auth/security/questions/{id}": {
            "put": {"tags": ["security-admin"], "summary": "Update security question", "security": [{"BearerAuth": []}]},
            "delete": {"tags": ["security-admin"], "summary": "Delete security question", "security": [{"BearerAuth": []}]}
        },
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Member login"}},
        "/auth/me": {"get": {"tags": ["auth"], "summary": "Current user", "security": [{"BearerAuth": []}]}},
        "/notifications": {"get": {"tags": ["notifications"], "summary": "List notifications", "security": [{"BearerAuth": []}]}},
        "/notifications/read-all": {"put": {"tags": ["notifications"], "summary": "Mark every notification read", "security": [{"BearerAuth": []}]}},
        "/notifications/{id}/read": {"put": {"tags": ["notifications"], "summary": "Mark notification read", "security": [{"BearerAuth": []}]}},
        "/notifications/{id}": {"delete": {"tags": ["notifications"], "summary": "Delete notification", "security": [{"BearerAuth": []}]}},
        "/notifications/dispatch": {"post": {"tags": ["notifications"], "summary": "Dispatch an event to recipients"}},
        "/notifications/digest/run": {"post": {"tags": ["notifications"], "summary": "Run the email digest"}},
        "/notifications/preferences": {
            "get": {"tags": ["preferences"], "summary": "Get preferences", "security": [{"BearerAuth": []}]},
            "put": {"tags": ["preferences"], "summary": "Update preferences", "security": [{"BearerAuth": []}]}
        },
        "/notifications/push/public-key": {"get": {"tags": ["push"], "summary": "VAPID public key"}},
        "/notifications/push/subscribe": {"post": {"tags": ["push"], "summary": "Register push subscription", "security": [{"BearerAuth": []}]}},
        "/notifications/push/unsubscribe": {"post": {"tags": ["push"], "summary": "Remove push subscription", "security": [{"BearerAuth": []}]}},
        "/ws/notifications": {"get": {"tags": ["notifications"], "summary": "Live notification channel (token query parameter)"}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8001",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Family Portal API",
	Description:      "Portal entry gate, member login and notification delivery for the family portal",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
