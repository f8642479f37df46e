package storage

import (
	"fmt"
)

// NewStore creates a storage backend based on the provided configuration
func NewStore(config StorageConfig) (Store, error) {
	switch config.Type {
	case "sqlite", "":
		return NewSQLiteStore(config.SQLite)
	case "postgres":
		return NewPostgresStore(config.Postgres)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
