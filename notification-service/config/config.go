package config

import (
	"os"
	"strconv"
	"time"

	sharedConfig "familyportal-backend/shared/config"
)

// NotificationConfig extends the shared configuration with delivery tuning
type NotificationConfig struct {
	*sharedConfig.Config

	Delivery DeliveryConfig
	Digest   DigestConfig
}

type DeliveryConfig struct {
	PushEnabled      bool
	EmailEnabled     bool
	PushConcurrency  int
	EmailConcurrency int
	DispatchTimeout  time.Duration
}

type DigestConfig struct {
	Enabled  bool
	Schedule string
	Window   time.Duration
}

var notificationConfig *NotificationConfig

func LoadNotificationConfig() *NotificationConfig {
	if notificationConfig != nil {
		return notificationConfig
	}

	notificationConfig = newNotificationConfig(sharedConfig.GetConfig())
	return notificationConfig
}

func GetNotificationConfig() *NotificationConfig {
	if notificationConfig == nil {
		return LoadNotificationConfig()
	}
	return notificationConfig
}

func newNotificationConfig(base *sharedConfig.Config) *NotificationConfig {
	windowHours := base.DigestWindowHours
	if windowHours <= 0 {
		windowHours = 24
	}

	return &NotificationConfig{
		Config: base,
		Delivery: DeliveryConfig{
			PushEnabled:      base.VAPIDPublicKey != "" && base.VAPIDPrivateKey != "",
			EmailEnabled:     getEnvAsBool("EMAIL_NOTIFICATION_ENABLE", true),
			PushConcurrency:  positive(getEnvAsInt("PUSH_CONCURRENCY", 8), 8),
			EmailConcurrency: positive(getEnvAsInt("EMAIL_CONCURRENCY", 4), 4),
			DispatchTimeout:  time.Duration(positive(getEnvAsInt("DISPATCH_TIMEOUT_SECONDS", 60), 60)) * time.Second,
		},
		Digest: DigestConfig{
			Enabled:  base.DigestEnabled,
			Schedule: base.DigestCron,
			Window:   time.Duration(windowHours) * time.Hour,
		},
	}
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Helper functions
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
