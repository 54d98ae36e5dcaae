package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to a SQLite database file through the pure-Go (cgo-free)
// modernc.org/sqlite driver, glued to GORM via glebarez/sqlite, and migrates
// every known model. path may be ":memory:" for tests.
func Open(logger *zap.Logger, path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	logger.Info("database_ready", zap.String("path", path))
	return db, nil
}
