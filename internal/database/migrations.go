package database

import (
	"fmt"

	logg "userbench/internal/logger"

	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/gorm"
)

const (
	DialectSQLite = "sqlite3"
	DialectMySQL  = "mysql"
)

// Migrations are tracked in their own table per database so the results
// store and a SQLite benchmark backend can share a file without clashing.
const (
	userMigrationTable    = "user_migrations"
	resultsMigrationTable = "results_migrations"
)

type Migrations struct {
	Table  string
	Source *migrate.MemoryMigrationSource
}

// UserMigrations returns the users and addresses schema for dialect.
func UserMigrations(dialect string) Migrations {
	var up []string
	switch dialect {
	case DialectMySQL:
		up = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
				username VARCHAR(64) NOT NULL,
				first_name VARCHAR(64) NOT NULL,
				last_name VARCHAR(64) NOT NULL,
				email VARCHAR(128) NOT NULL,
				age INT NOT NULL,
				date_of_birth DATETIME(3) NOT NULL,
				is_married BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME(3) NULL,
				updated_at DATETIME(3) NULL,
				UNIQUE KEY idx_users_email (email),
				KEY idx_users_age (age),
				KEY idx_users_date_of_birth (date_of_birth)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS addresses (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				street VARCHAR(128) NOT NULL,
				city VARCHAR(64) NOT NULL,
				country VARCHAR(64) NOT NULL,
				purchase_date DATETIME(3) NOT NULL,
				created_at DATETIME(3) NULL,
				updated_at DATETIME(3) NULL,
				KEY idx_addresses_user_id (user_id),
				KEY idx_addresses_country_purchase (country, purchase_date),
				CONSTRAINT fk_users_addresses FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		up = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				email TEXT NOT NULL,
				age INTEGER NOT NULL,
				date_of_birth DATETIME NOT NULL,
				is_married BOOLEAN NOT NULL DEFAULT 0,
				created_at DATETIME,
				updated_at DATETIME
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (email)`,
			`CREATE INDEX IF NOT EXISTS idx_users_age ON users (age)`,
			`CREATE INDEX IF NOT EXISTS idx_users_date_of_birth ON users (date_of_birth)`,
			`CREATE TABLE IF NOT EXISTS addresses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				street TEXT NOT NULL,
				city TEXT NOT NULL,
				country TEXT NOT NULL,
				purchase_date DATETIME NOT NULL,
				created_at DATETIME,
				updated_at DATETIME
			)`,
			`CREATE INDEX IF NOT EXISTS idx_addresses_user_id ON addresses (user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_addresses_country_purchase ON addresses (country, purchase_date)`,
		}
	}

	return Migrations{
		Table: userMigrationTable,
		Source: &migrate.MemoryMigrationSource{
			Migrations: []*migrate.Migration{
				{
					Id:   "0001_users_addresses",
					Up:   up,
					Down: []string{"DROP TABLE IF EXISTS addresses", "DROP TABLE IF EXISTS users"},
				},
			},
		},
	}
}

// ResultsMigrations returns the benchmark run history schema. The results
// store is always SQLite.
func ResultsMigrations() Migrations {
	return Migrations{
		Table: resultsMigrationTable,
		Source: &migrate.MemoryMigrationSource{
			Migrations: []*migrate.Migration{
				{
					Id: "0001_benchmark_runs",
					Up: []string{
						`CREATE TABLE IF NOT EXISTS benchmark_runs (
							id VARCHAR(64) PRIMARY KEY,
							backend VARCHAR(32) NOT NULL,
							operation VARCHAR(32) NOT NULL,
							status VARCHAR(20) NOT NULL,
							records INTEGER NOT NULL DEFAULT 0,
							chunks INTEGER NOT NULL DEFAULT 0,
							total_query_time_ms REAL NOT NULL DEFAULT 0,
							error_kind VARCHAR(32),
							error_message TEXT,
							parameters TEXT,
							created_at DATETIME,
							updated_at DATETIME
						)`,
						`CREATE INDEX IF NOT EXISTS idx_benchmark_runs_backend ON benchmark_runs (backend)`,
						`CREATE INDEX IF NOT EXISTS idx_benchmark_runs_operation ON benchmark_runs (operation)`,
						`CREATE INDEX IF NOT EXISTS idx_benchmark_runs_created_at ON benchmark_runs (created_at)`,
					},
					Down: []string{"DROP TABLE IF EXISTS benchmark_runs"},
				},
			},
		},
	}
}

// Migrate applies every pending up migration in m.
func Migrate(db *gorm.DB, dialect string, m Migrations) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database from GORM: %w", err)
	}

	set := migrate.MigrationSet{TableName: m.Table}
	applied, err := set.Exec(sqlDB, dialect, m.Source, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations to %s: %w", m.Table, err)
	}

	logg.New("database").Function("Migrate").
		Info("Applied migrations", "table", m.Table, "dialect", dialect, "applied", applied)
	return nil
}

// Rollback reverts every applied migration in m.
func Rollback(db *gorm.DB, dialect string, m Migrations) (int, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get database from GORM: %w", err)
	}

	set := migrate.MigrationSet{TableName: m.Table}
	reverted, err := set.Exec(sqlDB, dialect, m.Source, migrate.Down)
	if err != nil {
		return reverted, fmt.Errorf("failed to revert migrations in %s: %w", m.Table, err)
	}
	return reverted, nil
}
