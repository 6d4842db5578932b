package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pianista215/mam-acars/internal/model"
)

// Manager owns the single database handle used for the whole application
// run. All writers share this handle; connection-per-query churn is exactly
// what it exists to prevent.
type Manager struct {
	DB     *gorm.DB
	SqlDB  *sql.DB
	Path   string
	Logger zerolog.Logger
}

// NewManager creates a database manager for the SQLite file at path.
func NewManager(log zerolog.Logger, path string) *Manager {
	return &Manager{
		Path:   path,
		Logger: log,
	}
}

// Connect opens the SQLite database, creating the parent directory if
// needed, and applies the session pragmas.
func (m *Manager) Connect() error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(m.Path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	// WAL keeps readers unblocked while a flush transaction commits, and
	// synchronous=NORMAL still guarantees durability at transaction
	// boundaries, which is what the event store's crash contract needs.
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	m.DB = db

	m.SqlDB, err = db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := m.SqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	// One writer at a time; the store serializes writes anyway.
	m.SqlDB.SetMaxOpenConns(1)

	m.Logger.Info().Str("path", m.Path).Msg("Connected to database")
	return nil
}

// Setup migrates the schema. Safe to run on every startup.
func (m *Manager) Setup() error {
	m.Logger.Info().Msg("Migrating schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// Close closes the underlying connection.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}
