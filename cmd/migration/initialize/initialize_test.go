package initialize

import (
	"context"
	"path/filepath"
	"testing"

	"userbench/config"
	"userbench/internal/database"
	"userbench/internal/logger"
	"userbench/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndDropTables(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		Backend:        config.BackendSQLite,
		SQLitePath:     filepath.Join(dir, "users.db"),
		DatabaseDbPath: filepath.Join(dir, "results.db"),
	}
	ctx := context.Background()
	log := logger.New("initialize_test")

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ConnectBackend(ctx, cfg))

	repo, err := repositories.NewUserRepository(db, cfg)
	require.NoError(t, err)

	require.NoError(t, InitializeTables(ctx, repo, log))
	assert.True(t, db.SQL.Migrator().HasTable("users"))
	assert.True(t, db.SQL.Migrator().HasTable("addresses"))

	// Running it twice is a no-op.
	require.NoError(t, InitializeTables(ctx, repo, log))

	reverted, err := DropTables(db, log)
	require.NoError(t, err)
	assert.Positive(t, reverted)
	assert.False(t, db.SQL.Migrator().HasTable("users"))
}

func TestDropTables_RequiresSQL(t *testing.T) {
	_, err := DropTables(database.DB{}, logger.New("initialize_test"))
	assert.Error(t, err)
}
