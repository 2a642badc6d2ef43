package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/notification"
)

// Dispatcher delivers an event to the notification service without blocking
type Dispatcher interface {
	DispatchAsync(userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload)
}

// AdminAlerter tells every active admin about portal lockouts
type AdminAlerter struct {
	db         *gorm.DB
	dispatcher Dispatcher
	portalURL  string
	log        *zap.Logger
}

func NewAdminAlerter(db *gorm.DB, dispatcher Dispatcher, portalURL string, log *zap.Logger) *AdminAlerter {
	return &AdminAlerter{db: db, dispatcher: dispatcher, portalURL: portalURL, log: log}
}

func (a *AdminAlerter) SecurityLockout(ip string, blockedUntil time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var adminIDs []uuid.UUID
	if err := a.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND status = ?", models.UserRoleAdmin, models.UserStatusActive).
		Pluck("id", &adminIDs).Error; err != nil {
		a.log.Error("failed to load admins for lockout alert", zap.Error(err))
		return
	}
	if len(adminIDs) == 0 {
		return
	}

	a.dispatcher.DispatchAsync(adminIDs, notification.TypeSecurityAlert, notification.Payload{
		Title: "Portal locked",
		Body: fmt.Sprintf("Too many wrong security answers from %s. Entry is blocked until %s UTC.",
			ip, blockedUntil.UTC().Format("15:04")),
		URL: a.portalURL,
		Tag: "security-lockout-" + ip,
	})
}
