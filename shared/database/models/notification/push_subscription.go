package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription - browser push endpoint owned by a user
type PushSubscription struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Endpoint  string    `json:"endpoint" gorm:"type:text;not null;uniqueIndex"`
	P256dh    string    `json:"p256dh" gorm:"size:255;not null"`
	Auth      string    `json:"auth" gorm:"size:255;not null"`
	UserAgent string    `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *PushSubscription) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
