package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptRecord - failed attempt counter per client IP and gate action
type AttemptRecord struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	IPAddress    string     `json:"ip_address" gorm:"size:64;not null;uniqueIndex:idx_attempt_ip_action"`
	Action       string     `json:"action" gorm:"size:32;not null;uniqueIndex:idx_attempt_ip_action"`
	AttemptCount int        `json:"attempt_count" gorm:"not null;default:0"`
	BlockedUntil *time.Time `json:"blocked_until" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"index"`
}

func (a *AttemptRecord) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AttemptRecord) TableName() string {
	return "attempt_records"
}

// IsBlocked checks if the block is still active at the given instant
func (a *AttemptRecord) IsBlocked(now time.Time) bool {
	return a.BlockedUntil != nil && a.BlockedUntil.After(now)
}

// IsExpired reports a record whose block window has fully elapsed.
func (a *AttemptRecord) IsExpired(now time.Time) bool {
	return a.BlockedUntil != nil && !a.BlockedUntil.After(now)
}
