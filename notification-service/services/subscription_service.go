package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"familyportal-backend/shared/database/models/notification"
)

var ErrInvalidSubscription = errors.New("subscription needs endpoint, p256dh and auth")

type SubscriptionInput struct {
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

type SubscriptionService struct {
	db *gorm.DB
}

func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

// Subscribe stores the endpoint for userID. An endpoint already known is
// taken over with the new keys and owner.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID uuid.UUID, in SubscriptionInput) (*notification.PushSubscription, error) {
	in.Endpoint = strings.TrimSpace(in.Endpoint)
	if in.Endpoint == "" || in.P256dh == "" || in.Auth == "" {
		return nil, ErrInvalidSubscription
	}

	sub := notification.PushSubscription{
		UserID:    userID,
		Endpoint:  in.Endpoint,
		P256dh:    in.P256dh,
		Auth:      in.Auth,
		UserAgent: in.UserAgent,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.Assignments(map[string]any{
			"user_id":    userID,
			"p256dh":     in.P256dh,
			"auth":       in.Auth,
			"user_agent": in.UserAgent,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&sub).Error
	if err != nil {
		return nil, err
	}

	var stored notification.PushSubscription
	if err := s.db.WithContext(ctx).Where("endpoint = ?", in.Endpoint).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Unsubscribe removes the caller's endpoint and reports whether it existed
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID uuid.UUID, endpoint string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, strings.TrimSpace(endpoint)).
		Delete(&notification.PushSubscription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Count returns how many endpoints userID has registered
func (s *SubscriptionService) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&notification.PushSubscription{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
