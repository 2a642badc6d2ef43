package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	notificationConfig "familyportal-backend/notification-service/config"
	"familyportal-backend/notification-service/services"
	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database"
	"familyportal-backend/shared/logger"
)

// digest sends one digest sweep and exits, for use from an external scheduler
func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	config.LoadConfig()
	cfg := notificationConfig.LoadNotificationConfig()

	if !cfg.Delivery.EmailEnabled {
		log.Info("email delivery disabled, skipping digest")
		return
	}

	if err := database.InitDatabase(); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	digest := services.NewDigestService(
		database.GetDB(),
		services.NewEmailService(cfg.Config, log),
		services.NewTemplateService(cfg.FrontendURL),
		cfg.Digest.Window,
		cfg.Delivery.EmailConcurrency,
		log,
	)

	sent, err := digest.Run(ctx, time.Now())
	if err != nil {
		log.Fatal("digest sweep failed", zap.Error(err))
	}
	log.Info("digest sweep completed", zap.Int("sent", sent))
}
