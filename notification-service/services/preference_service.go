package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"familyportal-backend/shared/database/models/notification"
)

// PreferenceView is one type's channel settings as shown to the user
type PreferenceView struct {
	Type         notification.NotificationType `json:"type"`
	Label        string                        `json:"label"`
	EmailEnabled bool                          `json:"email_enabled"`
	PushEnabled  bool                          `json:"push_enabled"`
}

type PreferenceInput struct {
	Type         notification.NotificationType `json:"type" binding:"required"`
	EmailEnabled bool                          `json:"email_enabled"`
	PushEnabled  bool                          `json:"push_enabled"`
}

type PreferenceService struct {
	db *gorm.DB
}

func NewPreferenceService(db *gorm.DB) *PreferenceService {
	return &PreferenceService{db: db}
}

// Get returns a setting for every type; types without a row are off
func (s *PreferenceService) Get(ctx context.Context, userID uuid.UUID) ([]PreferenceView, error) {
	var rows []notification.Preference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}

	byType := make(map[notification.NotificationType]notification.Preference, len(rows))
	for _, row := range rows {
		byType[row.Type] = row
	}

	views := make([]PreferenceView, 0, len(notification.AllTypes()))
	for _, kind := range notification.AllTypes() {
		row := byType[kind]
		views = append(views, PreferenceView{
			Type:         kind,
			Label:        kind.Label(),
			EmailEnabled: row.EmailEnabled,
			PushEnabled:  row.PushEnabled,
		})
	}
	return views, nil
}

// Update upserts all inputs in one transaction. An unknown type rejects the
// whole batch before anything is written.
func (s *PreferenceService) Update(ctx context.Context, userID uuid.UUID, inputs []PreferenceInput) ([]PreferenceView, error) {
	for _, in := range inputs {
		if !in.Type.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNotificationType, in.Type)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, in := range inputs {
			row := notification.Preference{
				UserID:       userID,
				Type:         in.Type,
				EmailEnabled: in.EmailEnabled,
				PushEnabled:  in.PushEnabled,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}},
				DoUpdates: clause.Assignments(map[string]any{
					"email_enabled": in.EmailEnabled,
					"push_enabled":  in.PushEnabled,
					"updated_at":    now,
				}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}
