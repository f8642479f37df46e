package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migrations "github.com/inference-gateway/chatledger/internal/infra/storage/migrations"
	logger "github.com/inference-gateway/chatledger/internal/logger"
	_ "github.com/lib/pq"
)

func postgresDSN(config PostgresConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, sslMode)
}

// NewPostgresStore connects to PostgreSQL and migrates the schema
func NewPostgresStore(config PostgresConfig) (*SQLStore, error) {
	db, err := sql.Open("postgres", postgresDSN(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("PostgreSQL connection test failed: %w\n\n"+
			"Failed to connect to PostgreSQL. Verify:\n"+
			"  - PostgreSQL server is running at %s:%d\n"+
			"  - Database '%s' exists\n"+
			"  - User '%s' has proper permissions", err, config.Host, config.Port, config.Database, config.Username)
	}

	store := newSQLStore(db, migrations.DialectPostgres)

	applied, err := store.Migrate(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate PostgreSQL database: %w", err)
	}
	logger.Debug("postgres store ready", "host", config.Host, "database", config.Database, "migrations_applied", applied)

	return store, nil
}
