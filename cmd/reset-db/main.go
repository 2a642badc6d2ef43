package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database"
	appLogger "familyportal-backend/shared/logger"
)

func main() {
	log, err := appLogger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting database reset")

	config.LoadConfig()
	cfg := config.GetConfig()

	db, err := gorm.Open(postgres.Open(database.DSN(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	models := database.Models()
	// Drop in reverse so dependents go first
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			log.Fatal("failed to drop table", zap.String("model", modelName(models[i])), zap.Error(err))
		}
		log.Info("dropped table", zap.String("model", modelName(models[i])))
	}

	log.Info("database reset completed, run the seed command to recreate tables")
}

func modelName(model interface{}) string {
	return fmt.Sprintf("%T", model)
}
