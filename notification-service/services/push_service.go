package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database/models/notification"
)

// PushError is a non-2xx answer from a push service
type PushError struct {
	StatusCode int
	Body       string
}

func (e *PushError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// IsGone reports whether the endpoint no longer exists
func (e *PushError) IsGone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsGone reports whether err says the subscription should be dropped
func IsGone(err error) bool {
	var pushErr *PushError
	return errors.As(err, &pushErr) && pushErr.IsGone()
}

// PushSender delivers one encrypted message to a subscription
type PushSender interface {
	Send(ctx context.Context, sub notification.PushSubscription, message []byte) error
}

// WebPushSender sends through the Web Push protocol with VAPID auth
type WebPushSender struct {
	client     *http.Client
	subscriber string
	publicKey  string
	privateKey string
	ttl        int
}

// NewWebPushSender builds a sender from the VAPID settings
func NewWebPushSender(cfg *config.Config) *WebPushSender {
	ttl := cfg.PushTTLSeconds
	if ttl <= 0 {
		ttl = 86400
	}
	return &WebPushSender{
		client:     &http.Client{Timeout: 30 * time.Second},
		subscriber: strings.TrimPrefix(cfg.VAPIDSubject, "mailto:"),
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		ttl:        ttl,
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub notification.PushSubscription, message []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             s.ttl,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &PushError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// PublicKey is the VAPID application server key handed to browsers
func (s *WebPushSender) PublicKey() string {
	return s.publicKey
}
