package database

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres and verifies the connection
func Open(dsn string, environment string) (*gorm.DB, error) {
	logMode := logger.Silent
	if environment == "development" {
		logMode = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the tables for the given models
func Migrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.WithField("models", len(models)).Info("Database migration completed")
	return nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Failed to get sql handle for close")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
}
