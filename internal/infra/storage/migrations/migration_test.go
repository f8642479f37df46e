package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunner_Apply(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, DialectSQLite)
	ctx := context.Background()

	count, err := runner.Apply(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, table := range []string{"users", "models", "conversations", "messages", "transactions", "dead_letters"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	t.Run("second run is a no-op", func(t *testing.T) {
		count, err := runner.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestRunner_Status(t *testing.T) {
	db := setupTestDB(t)
	runner := NewRunner(db, DialectSQLite)
	ctx := context.Background()

	status, err := runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.False(t, status[0].Applied)

	_, err = runner.Apply(ctx)
	require.NoError(t, err)

	status, err = runner.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.True(t, s.Applied, s.Version)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestFor_UnsupportedDialect(t *testing.T) {
	_, err := For(Dialect("oracle"))
	assert.Error(t, err)
}

func TestFor_DialectsShareVersions(t *testing.T) {
	lite, err := For(DialectSQLite)
	require.NoError(t, err)
	pg, err := For(DialectPostgres)
	require.NoError(t, err)

	require.Equal(t, len(lite), len(pg))
	for i := range lite {
		assert.Equal(t, lite[i].Version, pg[i].Version)
	}
}
