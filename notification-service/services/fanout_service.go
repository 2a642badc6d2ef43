package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/notification"
)

var ErrInvalidNotificationType = errors.New("invalid notification type")

// FanoutOptions bounds delivery concurrency
type FanoutOptions struct {
	PushConcurrency  int
	EmailConcurrency int
	DispatchTimeout  time.Duration
}

// FanoutService turns one portal event into feed rows, live frames, pushes
// and emails according to each recipient's per-type preferences.
type FanoutService struct {
	db        *gorm.DB
	push      PushSender
	email     EmailSender
	live      LiveSender
	templates *TemplateService
	opts      FanoutOptions
	log       *zap.Logger

	inflight sync.WaitGroup
}

// NewFanoutService wires the delivery channels. A nil sender disables its
// channel.
func NewFanoutService(db *gorm.DB, push PushSender, email EmailSender, live LiveSender, templates *TemplateService, opts FanoutOptions, log *zap.Logger) *FanoutService {
	if opts.PushConcurrency <= 0 {
		opts.PushConcurrency = 8
	}
	if opts.EmailConcurrency <= 0 {
		opts.EmailConcurrency = 4
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = time.Minute
	}
	return &FanoutService{
		db:        db,
		push:      push,
		email:     email,
		live:      live,
		templates: templates,
		opts:      opts,
		log:       log,
	}
}

// Dispatch runs Notify in the background. The delivery outlives ctx's
// cancellation and is bounded by the dispatch timeout instead.
func (f *FanoutService) Dispatch(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) {
	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				f.log.Error("notification dispatch panicked", zap.Any("panic", r), zap.String("type", string(kind)))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.DispatchTimeout)
		defer cancel()

		if err := f.Notify(ctx, userIDs, kind, payload); err != nil {
			f.log.Error("notification dispatch failed", zap.String("type", string(kind)), zap.Error(err))
		}
	}()
}

// Wait blocks until every dispatched fan-out has settled
func (f *FanoutService) Wait() {
	f.inflight.Wait()
}

// Notify delivers one event to userIDs and returns once every delivery
// attempt has settled. Delivery failures are logged, never returned.
func (f *FanoutService) Notify(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidNotificationType, kind)
	}
	recipients := uniqueIDs(userIDs)
	if len(recipients) == 0 {
		return nil
	}

	f.storeAndStream(ctx, recipients, kind, payload)

	var prefs []notification.Preference
	if err := f.db.WithContext(ctx).
		Where("user_id IN ? AND type = ?", recipients, kind).
		Find(&prefs).Error; err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	var pushUsers, emailUsers []uuid.UUID
	for _, pref := range prefs {
		if pref.PushEnabled {
			pushUsers = append(pushUsers, pref.UserID)
		}
		if pref.EmailEnabled {
			emailUsers = append(emailUsers, pref.UserID)
		}
	}

	var channels errgroup.Group
	if f.push != nil && len(pushUsers) > 0 {
		channels.Go(func() error { return f.pushSweep(ctx, pushUsers, kind, payload) })
	}
	if f.email != nil && len(emailUsers) > 0 {
		channels.Go(func() error { return f.emailSweep(ctx, emailUsers, kind, payload) })
	}
	return channels.Wait()
}

// storeAndStream writes the in-app feed rows and mirrors them on the live
// channel. Failures here never block delivery.
func (f *FanoutService) storeAndStream(ctx context.Context, recipients []uuid.UUID, kind notification.NotificationType, payload notification.Payload) {
	now := time.Now().UTC()
	rows := make([]notification.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, notification.Notification{
			UserID:    userID,
			Type:      kind,
			Title:     payload.Title,
			Body:      payload.Body,
			URL:       payload.URL,
			Icon:      payload.Icon,
			Tag:       payload.Tag,
			CreatedAt: now,
		})
	}

	if err := f.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		f.log.Error("failed to store notifications", zap.String("type", string(kind)), zap.Error(err))
		return
	}

	if f.live == nil {
		return
	}
	for i := range rows {
		row := rows[i]
		err := f.live.SendToUser(row.UserID, &notification.WebSocketMessage{
			Type:      "notification",
			Kind:      row.Type,
			Title:     row.Title,
			Message:   row.Body,
			URL:       row.URL,
			Timestamp: row.CreatedAt,
			ID:        &row.ID,
		})
		if err != nil && !errors.Is(err, ErrNotConnected) {
			f.log.Debug("live delivery failed", zap.String("user_id", row.UserID.String()), zap.Error(err))
		}
	}
}

func (f *FanoutService) pushSweep(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) error {
	var subs []notification.PushSubscription
	if err := f.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&subs).Error; err != nil {
		f.log.Error("failed to load push subscriptions", zap.Error(err))
		return nil
	}
	if len(subs) == 0 {
		return nil
	}

	message, err := json.Marshal(payload)
	if err != nil {
		f.log.Error("failed to encode push payload", zap.Error(err))
		return nil
	}

	var (
		mu   sync.Mutex
		gone []uuid.UUID
	)
	deliveries := new(errgroup.Group)
	deliveries.SetLimit(f.opts.PushConcurrency)
	for _, sub := range subs {
		deliveries.Go(func() error {
			defer f.recoverDelivery("push", sub.UserID)

			err := f.push.Send(ctx, sub, message)
			switch {
			case err == nil:
			case IsGone(err):
				mu.Lock()
				gone = append(gone, sub.ID)
				mu.Unlock()
			default:
				f.log.Warn("push delivery failed",
					zap.String("user_id", sub.UserID.String()),
					zap.String("type", string(kind)),
					zap.Error(err))
			}
			return nil
		})
	}
	deliveries.Wait()

	if len(gone) > 0 {
		// Prune after the sweep so ctx expiry during delivery does not skip it
		res := f.db.WithContext(context.WithoutCancel(ctx)).
			Where("id IN ?", gone).
			Delete(&notification.PushSubscription{})
		if res.Error != nil {
			f.log.Error("failed to prune gone subscriptions", zap.Int("count", len(gone)), zap.Error(res.Error))
		} else {
			f.log.Info("pruned gone push subscriptions", zap.Int64("count", res.RowsAffected))
		}
	}
	return nil
}

func (f *FanoutService) emailSweep(ctx context.Context, userIDs []uuid.UUID, kind notification.NotificationType, payload notification.Payload) error {
	var users []models.User
	if err := f.db.WithContext(ctx).
		Select("id", "email", "display_name").
		Where("id IN ?", userIDs).
		Find(&users).Error; err != nil {
		f.log.Error("failed to load email recipients", zap.Error(err))
		return nil
	}

	deliveries := new(errgroup.Group)
	deliveries.SetLimit(f.opts.EmailConcurrency)
	for _, user := range users {
		if user.Email == "" {
			continue
		}
		deliveries.Go(func() error {
			defer f.recoverDelivery("email", user.ID)

			subject, html, err := f.templates.NotificationMessage(user.DisplayName, kind, payload)
			if err != nil {
				f.log.Error("failed to render notification email", zap.String("type", string(kind)), zap.Error(err))
				return nil
			}
			if err := f.email.Send(ctx, EmailMessage{
				To:      user.Email,
				ToName:  user.DisplayName,
				Subject: subject,
				HTML:    html,
			}); err != nil {
				f.log.Warn("email delivery failed",
					zap.String("user_id", user.ID.String()),
					zap.String("type", string(kind)),
					zap.Error(err))
			}
			return nil
		})
	}
	deliveries.Wait()
	return nil
}

func (f *FanoutService) recoverDelivery(channel string, userID uuid.UUID) {
	if r := recover(); r != nil {
		f.log.Error("delivery panicked",
			zap.String("channel", channel),
			zap.String("user_id", userID.String()),
			zap.Any("panic", r))
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
