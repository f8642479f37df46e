package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	migrations "github.com/inference-gateway/chatledger/internal/infra/storage/migrations"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (or creates) a SQLite database and migrates it.
// A single connection serializes every transaction, which is what makes
// balance updates safe on this backend.
func NewSQLiteStore(config SQLiteConfig) (*SQLStore, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", config.Path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := newSQLStore(db, migrations.DialectSQLite)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := store.Migrate(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite database: %w", err)
	}
	logger.Debug("sqlite store ready", "path", config.Path, "migrations_applied", applied)

	return store, nil
}
