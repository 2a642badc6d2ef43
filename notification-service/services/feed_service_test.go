package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"familyportal-backend/shared/database/models/notification"
)

func TestFeedListIsScopedAndOrdered(t *testing.T) {
	db := setupTestDB(t)
	me, other := uuid.New(), uuid.New()
	addNotification(t, db, me, notification.TypeReply, "older", 2*time.Hour)
	addNotification(t, db, me, notification.TypeReply, "newer", time.Hour)
	addNotification(t, db, other, notification.TypeReply, "not mine", time.Hour)

	page, err := NewFeedService(db).List(context.Background(), me, FeedQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.Unread != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: total=%d unread=%d items=%d", page.Total, page.Unread, len(page.Items))
	}
	if page.Items[0].Title != "newer" {
		t.Errorf("expected newest first, got %s", page.Items[0].Title)
	}
}

func TestFeedMarkReadAndDelete(t *testing.T) {
	db := setupTestDB(t)
	svc := NewFeedService(db)
	ctx := context.Background()
	me := uuid.New()
	addNotification(t, db, me, notification.TypeMention, "hello", time.Hour)
	addNotification(t, db, me, notification.TypeMention, "again", time.Hour)

	page, _ := svc.List(ctx, me, FeedQuery{})
	target := page.Items[0]

	if _, err := svc.MarkRead(ctx, uuid.New(), target.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("stranger mark read: expected not found, got %v", err)
	}
	item, err := svc.MarkRead(ctx, me, target.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !item.IsRead || item.ReadAt == nil {
		t.Errorf("expected read item, got %+v", item)
	}

	unread, err := svc.List(ctx, me, FeedQuery{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if unread.Total != 1 || unread.Unread != 1 {
		t.Errorf("expected one unread, got total=%d unread=%d", unread.Total, unread.Unread)
	}

	if n, err := svc.MarkAllRead(ctx, me); err != nil || n != 1 {
		t.Errorf("mark all read: n=%d err=%v", n, err)
	}

	if err := svc.Delete(ctx, uuid.New(), target.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("stranger delete: expected not found, got %v", err)
	}
	if err := svc.Delete(ctx, me, target.ID); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestTemplateLinksAndEscaping(t *testing.T) {
	ts := NewTemplateService("https://family.test/")

	if got := ts.Link("forum/1"); got != "https://family.test/forum/1" {
		t.Errorf("relative link: %s", got)
	}
	if got := ts.Link("https://elsewhere.test/x"); got != "https://elsewhere.test/x" {
		t.Errorf("absolute link changed: %s", got)
	}

	_, html, err := ts.NotificationMessage("Ben", notification.TypeReply, notification.Payload{
		Title: "New reply",
		Body:  "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("body must be escaped")
	}
	if !strings.Contains(html, "Replies") {
		t.Error("expected the type label")
	}
}
