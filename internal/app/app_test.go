package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"userbench/config"
	"userbench/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Backend:            config.BackendSQLite,
		SQLitePath:         filepath.Join(dir, "users.db"),
		DatabaseDbPath:     filepath.Join(dir, "results.db"),
		InsertChunkSize:    200000,
		ScanPageSize:       1000,
		RequestTimeout:     time.Minute,
		FailOnStartupError: true,
		MigrateOnStartup:   true,
	}
}

func TestNewWithConfig_SQLite(t *testing.T) {
	app, err := NewWithConfig(sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Equal(t, "sqlite", app.UserRepo.Name())
	assert.Equal(t, "sqlite", app.BenchmarkController.Backend())
	assert.NoError(t, app.BenchmarkController.Health(context.Background()))
	assert.NotNil(t, app.Database.SQL)
}

func TestNewWithConfig_UnreachableBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backend = config.BackendMySQL
	cfg.DatabaseHost = "127.0.0.1"
	cfg.DatabasePort = 1
	cfg.DatabaseName = "userbench"
	cfg.DatabaseUser = "root"

	t.Run("fatal", func(t *testing.T) {
		_, err := NewWithConfig(cfg)
		assert.Error(t, err)
	})

	t.Run("degraded", func(t *testing.T) {
		cfg := cfg
		cfg.FailOnStartupError = false

		app, err := NewWithConfig(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = app.Close() })

		assert.Equal(t, "mysql", app.UserRepo.Name())
		err = app.BenchmarkController.Health(context.Background())
		assert.True(t, apperrors.Is(err, apperrors.KindBackendUnavailable))

		_, err = app.BenchmarkController.QueryUsers(context.Background())
		assert.True(t, apperrors.Is(err, apperrors.KindBackendUnavailable))
	})
}

func TestNewWithConfig_BadResultsPath(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.DatabaseDbPath = ""

	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestApp_Validate(t *testing.T) {
	app := &App{}
	assert.Error(t, app.validate())
}
