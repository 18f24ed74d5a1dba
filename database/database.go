package database

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"dumplinghouse-backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=dumplinghouse port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	// Ensure PostgreSQL has gen_random_uuid() available (pgcrypto extension).
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto extension: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.PasswordResetToken{},
		&models.UsedReceipt{},
		&models.PointsTransaction{},
		&models.MenuItem{},
		&models.Reward{},
		&models.Redemption{},
		&models.SuspiciousFlag{},
	); err != nil {
		return err
	}

	// At most one live reservation per user. Enforced in the database so two
	// concurrent reserves cannot both insert; the application-level check in
	// the redemption service only gives the friendlier error.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_redemptions_one_reserved_per_user ON redemptions (user_id) WHERE status = 'reserved';`).Error; err != nil {
		return fmt.Errorf("failed to create reserved-redemption index: %w", err)
	}

	return nil
}

func CreateDefaultAdmin(db *gorm.DB) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" {
		adminEmail = "admin@dumplinghouse.com"
	}
	if adminPassword == "" {
		// Never ship a well-known default credential; generate one and
		// print it once so the operator can log in and change it.
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		adminPassword = hex.EncodeToString(buf)
		log.Printf("ADMIN_PASSWORD not set; generated admin password: %s", adminPassword)
	}

	var existingUser models.User
	result := db.Where("email = ?", adminEmail).First(&existingUser)
	if result.Error == nil {
		// Admin already exists
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:    adminEmail,
		Password: string(hashedPassword),
		Role:     "admin",
		Name:     "Admin User",
	}

	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Printf("Default admin created: %s", adminEmail)
	return nil
}
