package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType is the closed set of portal events users can subscribe to
type NotificationType string

const (
	TypeMention       NotificationType = "mention"
	TypeReply         NotificationType = "reply"
	TypeNewTopic      NotificationType = "new_topic"
	TypeReaction      NotificationType = "reaction"
	TypeEventReminder NotificationType = "event_reminder"
	TypeNewPhotos     NotificationType = "new_photos"
	TypeSecurityAlert NotificationType = "security_alert"
)

var allTypes = []NotificationType{
	TypeMention,
	TypeReply,
	TypeNewTopic,
	TypeReaction,
	TypeEventReminder,
	TypeNewPhotos,
	TypeSecurityAlert,
}

// AllTypes returns every notification type in display order
func AllTypes() []NotificationType {
	out := make([]NotificationType, len(allTypes))
	copy(out, allTypes)
	return out
}

// IsValid reports whether t belongs to the enumeration
func (t NotificationType) IsValid() bool {
	for _, known := range allTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Label is the human readable name used in emails
func (t NotificationType) Label() string {
	switch t {
	case TypeMention:
		return "Mentions"
	case TypeReply:
		return "Replies"
	case TypeNewTopic:
		return "New topics"
	case TypeReaction:
		return "Reactions"
	case TypeEventReminder:
		return "Event reminders"
	case TypeNewPhotos:
		return "New photos"
	case TypeSecurityAlert:
		return "Security alerts"
	default:
		return string(t)
	}
}

// Payload is the content shared by every delivery channel
type Payload struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Notification is the per-recipient in-app record of a dispatched event
type Notification struct {
	ID        uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	Type      NotificationType `json:"type" gorm:"size:32;not null;index"`
	Title     string           `json:"title" gorm:"size:200;not null"`
	Body      string           `json:"body" gorm:"type:text"`
	URL       string           `json:"url,omitempty" gorm:"size:500"`
	Icon      string           `json:"icon,omitempty" gorm:"size:500"`
	Tag       string           `json:"tag,omitempty" gorm:"size:100"`
	IsRead    bool             `json:"is_read" gorm:"default:false;index"`
	CreatedAt time.Time        `json:"created_at" gorm:"index"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
}

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return nil
}

// TableName returns the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// WebSocketMessage is the frame sent on the live channel
type WebSocketMessage struct {
	Type      string           `json:"type"`
	Kind      NotificationType `json:"kind,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	URL       string           `json:"url,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	ID        *uuid.UUID       `json:"id,omitempty"`
}

// GetCurrentTime returns current time for WebSocket messages
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}
