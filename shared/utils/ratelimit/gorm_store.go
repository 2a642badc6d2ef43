package ratelimit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"familyportal-backend/shared/database/models/auth"
)

// idleRecordTTL bounds how long an unblocked counter survives without activity
const idleRecordTTL = 24 * time.Hour

// GormStore keeps counters in the attempt_records table
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, ip, action string) (*Record, error) {
	var rec auth.AttemptRecord
	err := s.db.WithContext(ctx).
		Where("ip_address = ? AND action = ?", ip, action).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Record{AttemptCount: rec.AttemptCount, BlockedUntil: rec.BlockedUntil}, nil
}

// Increment upserts the counter with a single INSERT ... ON CONFLICT statement.
// The conflicting row stays locked until the transaction commits, so the
// follow-up block bookkeeping sees a serialized count.
func (s *GormStore) Increment(ctx context.Context, ip, action string, maxAttempts int, block time.Duration, now time.Time) (*Record, error) {
	var out Record

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := auth.AttemptRecord{
			IPAddress:    ip,
			Action:       action,
			AttemptCount: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip_address"}, {Name: "action"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"attempt_count": gorm.Expr("attempt_records.attempt_count + 1"),
				"updated_at":    now,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		var rec auth.AttemptRecord
		if err := tx.Where("ip_address = ? AND action = ?", ip, action).First(&rec).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if rec.IsExpired(now) {
			rec.AttemptCount = 1
			rec.BlockedUntil = nil
			updates["attempt_count"] = 1
			updates["blocked_until"] = nil
		}
		if rec.AttemptCount >= maxAttempts && !rec.IsBlocked(now) {
			until := now.Add(block)
			rec.BlockedUntil = &until
			updates["blocked_until"] = until
		}

		if len(updates) > 0 {
			updates["updated_at"] = now
			if err := tx.Model(&auth.AttemptRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		out = Record{AttemptCount: rec.AttemptCount, BlockedUntil: rec.BlockedUntil}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (s *GormStore) Reset(ctx context.Context, ip, action string) error {
	return s.db.WithContext(ctx).
		Where("ip_address = ? AND action = ?", ip, action).
		Delete(&auth.AttemptRecord{}).Error
}

// PurgeExpired removes elapsed blocks and idle unblocked counters
func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("(blocked_until IS NOT NULL AND blocked_until <= ?) OR (blocked_until IS NULL AND updated_at < ?)",
			now, now.Add(-idleRecordTTL)).
		Delete(&auth.AttemptRecord{})
	return result.RowsAffected, result.Error
}
