package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models/notification"
)

var ErrNotificationNotFound = errors.New("notification not found")

const maxFeedPage = 100

type FeedQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

type FeedPage struct {
	Items  []notification.Notification `json:"items"`
	Total  int64                       `json:"total"`
	Unread int64                       `json:"unread"`
}

// FeedService is the in-app notification list of a single user
type FeedService struct {
	db *gorm.DB
}

func NewFeedService(db *gorm.DB) *FeedService {
	return &FeedService{db: db}
}

func (s *FeedService) List(ctx context.Context, userID uuid.UUID, q FeedQuery) (*FeedPage, error) {
	if q.Limit <= 0 || q.Limit > maxFeedPage {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	db := s.db.WithContext(ctx)
	page := &FeedPage{Items: []notification.Notification{}}

	base := db.Model(&notification.Notification{}).Where("user_id = ?", userID)
	if err := base.Session(&gorm.Session{}).Where("is_read = ?", false).Count(&page.Unread).Error; err != nil {
		return nil, err
	}

	query := base.Session(&gorm.Session{})
	if q.UnreadOnly {
		query = query.Where("is_read = ?", false).Session(&gorm.Session{})
	}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, err
	}
	if err := query.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&page.Items).Error; err != nil {
		return nil, err
	}
	return page, nil
}

func (s *FeedService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error) {
	db := s.db.WithContext(ctx)

	var item notification.Notification
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if item.IsRead {
		return &item, nil
	}

	now := time.Now().UTC()
	if err := db.Model(&item).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, err
	}
	item.IsRead = true
	item.ReadAt = &now
	return &item, nil
}

func (s *FeedService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (s *FeedService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&notification.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
