package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SecurityQuestion - portal entry question; Answer is stored normalized
type SecurityQuestion struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Question     string    `json:"question" gorm:"type:text;not null"`
	Answer       string    `json:"-" gorm:"size:255;not null"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:true;index"`
	DisplayOrder int       `json:"display_order" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (q *SecurityQuestion) BeforeCreate(_ *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

func (q *SecurityQuestion) BeforeSave(_ *gorm.DB) error {
	q.Answer = NormalizeAnswer(q.Answer)
	return nil
}

func (SecurityQuestion) TableName() string {
	return "security_questions"
}

// NormalizeAnswer trims surrounding whitespace and lower-cases the answer.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// Matches compares a submitted answer with the stored one, ignoring case and
// surrounding whitespace.
func (q *SecurityQuestion) Matches(answer string) bool {
	return q.Answer == NormalizeAnswer(answer)
}
