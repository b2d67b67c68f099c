package database

import (
	"fmt"

	"github.com/atlasnotes/atlas/backend/internal/jobs"
	"github.com/atlasnotes/atlas/backend/internal/library"
	"github.com/atlasnotes/atlas/backend/internal/notes"
	"github.com/atlasnotes/atlas/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&library.Subject{},
		&library.Notebook{},
		&notes.Note{},
		&notes.Stroke{},
		&notes.File{},
		&notes.Flashcard{},
		&jobs.Job{},
	); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
