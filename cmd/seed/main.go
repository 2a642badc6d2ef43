package main

import (
	"os"

	"go.uber.org/zap"

	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database"
	"familyportal-backend/shared/logger"
)

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting database seeding")

	// Load configuration
	config.LoadConfig()
	cfg := config.GetConfig()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.CloseDatabase()
	db := database.GetDB()

	// Run seeding
	if err := database.SeedDatabase(db); err != nil {
		log.Fatal("failed to seed database", zap.Error(err))
	}

	if err := database.CreateAdmin(db, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		log.Fatal("failed to create admin", zap.Error(err))
	}

	log.Info("database seeding completed", zap.String("admin", cfg.AdminEmail))
}
