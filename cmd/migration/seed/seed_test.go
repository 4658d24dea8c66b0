package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"userbench/config"
	"userbench/internal/app"
	"userbench/internal/apperrors"
	"userbench/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	dir := t.TempDir()
	a, err := app.NewWithConfig(config.Config{
		GeneralVersion:     "test",
		ServerPort:         3000,
		Backend:            config.BackendSQLite,
		SQLitePath:         filepath.Join(dir, "users.db"),
		DatabaseDbPath:     filepath.Join(dir, "results.db"),
		InsertChunkSize:    4,
		ScanPageSize:       10,
		RequestTimeout:     time.Minute,
		FailOnStartupError: true,
		MigrateOnStartup:   true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func countUsers(t *testing.T, a *app.App) int64 {
	t.Helper()
	var count int64
	require.NoError(t, a.Database.SQL.Table("users").Count(&count).Error)
	return count
}

func TestSeed(t *testing.T) {
	a := newApp(t)
	log := logger.New("seed_test")

	outcome, err := Seed(context.Background(), a, Options{NumberOfUsers: 10, StartIndex: 1}, log)
	require.NoError(t, err)
	assert.EqualValues(t, 10, outcome.Records)
	assert.Equal(t, 3, outcome.Chunks)
	assert.NotEmpty(t, outcome.RunID)
	assert.EqualValues(t, 10, countUsers(t, a))
}

func TestSeed_AtomicRollsBackOnFailure(t *testing.T) {
	a := newApp(t)
	log := logger.New("seed_test")

	_, err := Seed(context.Background(), a, Options{NumberOfUsers: 2, StartIndex: 9}, log)
	require.NoError(t, err)

	// Users 1..8 go in as two clean chunks, then user9 collides.
	_, err = Seed(context.Background(), a, Options{NumberOfUsers: 10, StartIndex: 1, Atomic: true}, log)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPartialBatch, apperrors.KindOf(err))
	assert.EqualValues(t, 2, countUsers(t, a))
}

func TestSeed_InvalidArgument(t *testing.T) {
	a := newApp(t)

	_, err := Seed(context.Background(), a, Options{NumberOfUsers: -1, StartIndex: 1}, logger.New("seed_test"))
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}
