package database

import (
	"fmt"

	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedAdminUser(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration plus the indexes gorm tags cannot
// express. Exported so the test harness can share it with sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.JoinRequest{},
		&models.Invitation{},
		&models.Upload{},
		&models.Notification{},
	); err != nil {
		return err
	}

	// At most one pending join request per (user, group). Terminal rows do
	// not count against the pair, so the index is partial.
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_join_requests_pending
		 ON join_requests (group_id, user_id)
		 WHERE status = 'pending'`,
	).Error
}

func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        "admin@procur.local",
		PasswordHash: hash,
		DisplayName:  "System Admin",
		Role:         models.UserRoleAdmin,
		IsVerified:   true,
		IsActive:     true,
	}

	return db.Create(&admin).Error
}
