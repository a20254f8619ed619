package database

import (
	"fmt"
	"strings"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/database/migrations"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the SQLite ledger at path and brings its schema up to date
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers, the busy timeout covers other processes
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the migrations and auto-migrates the schema
func Migrate(db *gorm.DB) error {
	// Must run before AutoMigrate adds the column on its own
	if err := migrations.AddRolloverFlag(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.AutoMigrate(&types.Order{}); err != nil {
		return err
	}

	if err := migrations.AddOrderIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.NormalizeCanceledStatus(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
