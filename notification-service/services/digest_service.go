package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/notification"
)

// DigestService sends the combined email of recent notifications
type DigestService struct {
	db          *gorm.DB
	email       EmailSender
	templates   *TemplateService
	window      time.Duration
	concurrency int
	log         *zap.Logger
}

func NewDigestService(db *gorm.DB, email EmailSender, templates *TemplateService, window time.Duration, concurrency int, log *zap.Logger) *DigestService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &DigestService{
		db:          db,
		email:       email,
		templates:   templates,
		window:      window,
		concurrency: concurrency,
		log:         log,
	}
}

// Run emails every eligible recipient the notifications created in
// [now-window, now) whose type they receive by email, and returns how many
// emails were actually sent. One recipient's failure does not stop the rest.
func (d *DigestService) Run(ctx context.Context, now time.Time) (int, error) {
	if d.email == nil {
		return 0, nil
	}
	now = now.UTC()
	since := now.Add(-d.window)

	var prefs []notification.Preference
	if err := d.db.WithContext(ctx).Where("email_enabled = ?", true).Find(&prefs).Error; err != nil {
		return 0, fmt.Errorf("load email preferences: %w", err)
	}
	if len(prefs) == 0 {
		return 0, nil
	}

	enabled := make(map[uuid.UUID]map[notification.NotificationType]bool)
	for _, pref := range prefs {
		if enabled[pref.UserID] == nil {
			enabled[pref.UserID] = make(map[notification.NotificationType]bool)
		}
		enabled[pref.UserID][pref.Type] = true
	}
	userIDs := make([]uuid.UUID, 0, len(enabled))
	for userID := range enabled {
		userIDs = append(userIDs, userID)
	}

	var rows []notification.Notification
	if err := d.db.WithContext(ctx).
		Where("user_id IN ? AND created_at >= ? AND created_at < ?", userIDs, since, now).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("load notifications: %w", err)
	}

	items := make(map[uuid.UUID][]notification.Notification)
	for _, row := range rows {
		if enabled[row.UserID][row.Type] {
			items[row.UserID] = append(items[row.UserID], row)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	recipients := make([]uuid.UUID, 0, len(items))
	for userID := range items {
		recipients = append(recipients, userID)
	}
	var users []models.User
	if err := d.db.WithContext(ctx).
		Select("id", "email", "display_name").
		Where("id IN ?", recipients).
		Find(&users).Error; err != nil {
		return 0, fmt.Errorf("load recipients: %w", err)
	}

	var sent atomic.Int64
	sends := new(errgroup.Group)
	sends.SetLimit(d.concurrency)
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		sends.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("digest send panicked", zap.String("user_id", user.ID.String()), zap.Any("panic", r))
				}
			}()

			subject, html, err := d.templates.DigestMessage(user.DisplayName, since, items[user.ID])
			if err != nil {
				d.log.Error("failed to render digest", zap.String("user_id", user.ID.String()), zap.Error(err))
				return nil
			}
			if err := d.email.Send(ctx, EmailMessage{
				To:      user.Email,
				ToName:  user.DisplayName,
				Subject: subject,
				HTML:    html,
			}); err != nil {
				d.log.Warn("digest delivery failed", zap.String("user_id", user.ID.String()), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	sends.Wait()

	d.log.Info("digest sweep finished",
		zap.Int("eligible", len(users)),
		zap.Int64("sent", sent.Load()),
		zap.Time("since", since))
	return int(sent.Load()), nil
}
