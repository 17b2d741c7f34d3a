// internal/database/database.go
package database

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mediscan-back/internal/models"
)

// InitDB opens the database connection. Postgres by default; DB_DRIVER=sqlite
// switches to a file (or in-memory) sqlite database for local development.
func InitDB() (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	if os.Getenv("DB_DRIVER") == "sqlite" {
		dsn := os.Getenv("DB_DSN")
		if dsn == "" {
			dsn = "mediscan.db"
		}
		db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := envOr("DB_HOST", "localhost")
		port := envOr("DB_PORT", "5432")
		user := envOr("DB_USER", "postgres")
		password := os.Getenv("DB_PASSWORD")
		name := envOr("DB_NAME", "mediscan")
		sslmode := envOr("DB_SSLMODE", "disable")
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, name, sslmode)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return db, nil
}

// MigrateDB runs the schema auto-migration for all models.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Image{},
		&models.Prediction{},
		&models.Heatmap{},
		&models.Feedback{},
		&models.Report{},
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
