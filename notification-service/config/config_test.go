package config

import (
	"testing"
	"time"

	sharedConfig "familyportal-backend/shared/config"
)

func TestNewNotificationConfigDefaults(t *testing.T) {
	t.Setenv("PUSH_CONCURRENCY", "0")
	t.Setenv("DISPATCH_TIMEOUT_SECONDS", "abc")

	cfg := newNotificationConfig(&sharedConfig.Config{
		VAPIDPublicKey: "pub",
		DigestEnabled:  true,
		DigestCron:     "0 7 * * *",
	})

	if cfg.Delivery.PushEnabled {
		t.Error("push must stay disabled without a private key")
	}
	if cfg.Delivery.PushConcurrency != 8 {
		t.Errorf("expected fallback push concurrency 8, got %d", cfg.Delivery.PushConcurrency)
	}
	if cfg.Delivery.DispatchTimeout != 60*time.Second {
		t.Errorf("expected 60s dispatch timeout, got %v", cfg.Delivery.DispatchTimeout)
	}
	if cfg.Digest.Window != 24*time.Hour || cfg.Digest.Schedule != "0 7 * * *" {
		t.Errorf("unexpected digest config: %+v", cfg.Digest)
	}
}

func TestPushEnabledWithBothKeys(t *testing.T) {
	cfg := newNotificationConfig(&sharedConfig.Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"})
	if !cfg.Delivery.PushEnabled {
		t.Error("expected push enabled with both VAPID keys")
	}
}
