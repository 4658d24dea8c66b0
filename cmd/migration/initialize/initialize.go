package initialize

import (
	"context"

	"userbench/internal/database"
	"userbench/internal/logger"
	"userbench/internal/repositories"
)

// InitializeTables creates the users schema on the connected backend: tables
// for SQL, indexes for Mongo, the index mapping for Elasticsearch.
func InitializeTables(ctx context.Context, repo repositories.UserRepository, log logger.Logger) error {
	log = log.Function("InitializeTables")
	log.Info("Initializing benchmark schema", "backend", repo.Name())

	if err := repo.EnsureSchema(ctx); err != nil {
		return log.Err("failed to initialize schema", err, "backend", repo.Name())
	}

	log.Info("Schema initialization complete", "backend", repo.Name())
	return nil
}

// DropTables reverts the users migrations. Only SQL backends track
// migrations.
func DropTables(db database.DB, log logger.Logger) (int, error) {
	log = log.Function("DropTables")
	if db.SQL == nil {
		return 0, log.ErrMsg("rollback requires a SQL backend")
	}

	reverted, err := database.Rollback(db.SQL, db.Dialect, database.UserMigrations(db.Dialect))
	if err != nil {
		return reverted, log.Err("failed to roll back users schema", err)
	}

	log.Info("Users schema rolled back", "dialect", db.Dialect, "reverted", reverted)
	return reverted, nil
}
