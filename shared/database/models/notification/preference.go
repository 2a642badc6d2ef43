package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Preference - per user, per type channel opt-in. No row means opted out.
type Preference struct {
	ID           uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_pref_user_type"`
	Type         NotificationType `json:"type" gorm:"size:32;not null;uniqueIndex:idx_pref_user_type"`
	EmailEnabled bool             `json:"email_enabled" gorm:"not null;default:false"`
	PushEnabled  bool             `json:"push_enabled" gorm:"not null;default:false"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (p *Preference) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (Preference) TableName() string {
	return "notification_preferences"
}
