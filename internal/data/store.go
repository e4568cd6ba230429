package data

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is a GORM-based persistence layer for the synced entity graph.
// One Store (and its underlying session) serves a whole run; it is only
// ever used from the single synchronous sync flow.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying GORM handle for ad-hoc queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema for all persisted kinds.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Organisation{},
		&Team{},
		&User{},
		&Email{},
		&Repo{},
		&Commit{},
		&CommitParent{},
		&File{},
		&Ref{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
