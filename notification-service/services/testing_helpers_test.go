package services

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"familyportal-backend/shared/database"
	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/notification"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{
		Email:       name + "@family.test",
		Password:    "x",
		DisplayName: name,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func setPreference(t *testing.T, db *gorm.DB, userID uuid.UUID, kind notification.NotificationType, email, push bool) {
	t.Helper()
	pref := notification.Preference{UserID: userID, Type: kind}
	if err := db.Create(&pref).Error; err != nil {
		t.Fatalf("failed to create preference: %v", err)
	}
	if err := db.Model(&pref).Updates(map[string]any{"email_enabled": email, "push_enabled": push}).Error; err != nil {
		t.Fatalf("failed to update preference: %v", err)
	}
}

func addSubscription(t *testing.T, db *gorm.DB, userID uuid.UUID, endpoint string) notification.PushSubscription {
	t.Helper()
	sub := notification.PushSubscription{UserID: userID, Endpoint: endpoint, P256dh: "p256", Auth: "auth"}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}
	return sub
}

type fakePush struct {
	mu    sync.Mutex
	sent  []notification.PushSubscription
	fail  map[string]error
	panic string
}

func (f *fakePush) Send(_ context.Context, sub notification.PushSubscription, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub)
	if sub.Endpoint == f.panic {
		panic("push transport exploded")
	}
	return f.fail[sub.Endpoint]
}

func (f *fakePush) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []EmailMessage
	fail map[string]error
}

func (f *fakeEmail) Send(_ context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmail) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, msg := range f.sent {
		out = append(out, msg.To)
	}
	return out
}

type fakeLive struct {
	mu     sync.Mutex
	frames map[uuid.UUID][]*notification.WebSocketMessage
}

func (f *fakeLive) SendToUser(userID uuid.UUID, message *notification.WebSocketMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames == nil {
		f.frames = make(map[uuid.UUID][]*notification.WebSocketMessage)
	}
	f.frames[userID] = append(f.frames[userID], message)
	return nil
}
