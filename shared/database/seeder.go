package database

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"familyportal-backend/shared/config"
	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/database/models/auth"
	utils "familyportal-backend/shared/utils/auth"
)

// defaultQuestions are only inserted into an empty question table. Answers are
// placeholders meant to be changed by an admin after the first deploy.
var defaultQuestions = []auth.SecurityQuestion{
	{Question: "What is the family dog's name?", Answer: "change-me", IsActive: true, DisplayOrder: 1},
	{Question: "In which town is the summer house?", Answer: "change-me", IsActive: true, DisplayOrder: 2},
	{Question: "What is grandma's maiden name?", Answer: "change-me", IsActive: true, DisplayOrder: 3},
}

// SeedDatabase seeds the database with initial data
func SeedDatabase(db *gorm.DB) error {
	zap.L().Info("checking database seed data")

	questionsCreated, err := seedSecurityQuestions(db)
	if err != nil {
		return err
	}

	cfg := config.GetConfig()
	if err := CreateAdmin(db, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		return err
	}

	zap.L().Info("database seeding completed", zap.Int("questions_created", questionsCreated))
	return nil
}

func seedSecurityQuestions(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&auth.SecurityQuestion{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count security questions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for _, q := range defaultQuestions {
		question := q
		if err := db.Create(&question).Error; err != nil {
			return created, fmt.Errorf("failed to create security question: %w", err)
		}
		created++
	}

	return created, nil
}

// CreateAdmin creates the portal admin user unless the email already exists
func CreateAdmin(db *gorm.DB, email, password, displayName string) error {
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		zap.L().Info("admin already exists", zap.String("email", email))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:       email,
		Password:    hashedPassword,
		DisplayName: displayName,
		Role:        models.UserRoleAdmin,
		Status:      models.UserStatusActive,
	}

	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	zap.L().Info("admin created", zap.String("email", email))
	return nil
}
