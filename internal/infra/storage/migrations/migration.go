package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	logger "github.com/inference-gateway/chatledger/internal/logger"
)

// Dialect names a supported SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Migration is one forward schema change
type Migration struct {
	Version     string
	Description string
	UpSQL       string
}

// MigrationStatus reports whether a known migration has been applied
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Runner applies migrations and tracks them in schema_migrations
type Runner struct {
	db      *sql.DB
	dialect Dialect
}

// NewRunner creates a migration runner for db
func NewRunner(db *sql.DB, dialect Dialect) *Runner {
	return &Runner{db: db, dialect: dialect}
}

// For returns the migrations of a dialect, ordered by version
func For(dialect Dialect) ([]Migration, error) {
	var list []Migration
	switch dialect {
	case DialectSQLite:
		list = sqliteMigrations()
	case DialectPostgres:
		list = postgresMigrations()
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

func (r *Runner) placeholder(n int) string {
	if r.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (r *Runner) ensureTable(ctx context.Context) error {
	tsType := "DATETIME"
	if r.dialect == DialectPostgres {
		tsType = "TIMESTAMP WITH TIME ZONE"
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(64) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at %s NOT NULL
	)`, tsType)
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version string
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
	}

	record := fmt.Sprintf("INSERT INTO schema_migrations (version, description, applied_at) VALUES (%s, %s, %s)",
		r.placeholder(1), r.placeholder(2), r.placeholder(3))
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}

	return tx.Commit()
}

// Apply applies every pending migration and returns how many ran
func (r *Runner) Apply(ctx context.Context) (int, error) {
	list, err := For(r.dialect)
	if err != nil {
		return 0, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range list {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return count, fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		logger.Info("applied migration", "dialect", string(r.dialect), "version", m.Version)
		count++
	}
	return count, nil
}

// Status lists every known migration and whether it has been applied
func (r *Runner) Status(ctx context.Context) ([]MigrationStatus, error) {
	list, err := For(r.dialect)
	if err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(list))
	for _, m := range list {
		s := MigrationStatus{Version: m.Version, Description: m.Description}
		if at, ok := applied[m.Version]; ok {
			s.Applied = true
			s.AppliedAt = &at
		}
		status = append(status, s)
	}
	return status, nil
}
