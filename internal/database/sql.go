package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"userbench/config"
	logg "userbench/internal/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func gormConfig(config config.Config) *gorm.Config {
	level := logger.Warn
	if strings.EqualFold(config.LogLevel, "debug") {
		level = logger.Info
	}

	gormLogger := logger.New(
		logg.New("gorm").File("sql"),
		logger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	createBatchSize := config.SQLCreateBatchSize
	if createBatchSize <= 0 {
		createBatchSize = 1000
	}

	return &gorm.Config{
		Logger:                                   gormLogger,
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		CreateBatchSize:                          createBatchSize,
		TranslateError:                           true,
	}
}

// sqliteDSN enables foreign keys on every pooled connection so address rows
// cascade with their user.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

func openSQLite(dbPath string, gormConfig *gorm.Config, log logg.Logger) (*gorm.DB, error) {
	log = log.Function("openSQLite")

	if dbPath == "" {
		return nil, log.Error("database path is empty", "dbPath", dbPath)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		log.Info("Creating database directory", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, log.Err("failed to create database directory", err, "dir", dir)
		}
	}

	log.Info("Connecting with GORM", "dbPath", dbPath)
	db, err := gorm.Open(sqlite.Open(sqliteDSN(dbPath)), gormConfig)
	if err != nil {
		return nil, log.Err("failed to open database with GORM", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, log.Err("failed to get database from GORM", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, log.Err("failed to ping database through GORM", err)
	}

	log.Info("Successfully connected with GORM")
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func (s *DB) initializeSQLiteDB(gormConfig *gorm.Config, config config.Config) error {
	log := s.log.Function("initializeSQLiteDB")

	db, err := openSQLite(config.SQLitePath, gormConfig, log)
	if err != nil {
		return err
	}

	s.SQL = db
	s.Dialect = DialectSQLite

	return nil
}

// MySQLDSN builds the connection string for the MySQL backend. Times are read
// and written as UTC.
func MySQLDSN(config config.Config) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = config.DatabaseUser
	cfg.Passwd = config.DatabasePassword
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", config.DatabaseHost, config.DatabasePort)
	cfg.DBName = config.DatabaseName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func (s *DB) initializeMySQLDB(ctx context.Context, config config.Config) error {
	log := s.log.Function("initializeMySQLDB")

	log.Info("Connecting with GORM",
		"host", config.DatabaseHost,
		"port", config.DatabasePort,
		"database", config.DatabaseName)

	db, err := gorm.Open(gormmysql.Open(MySQLDSN(config)), gormConfig(config))
	if err != nil {
		return log.Err("failed to open mysql with GORM", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return log.Err("failed to get database from GORM", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return log.Err("failed to ping mysql", err)
	}

	log.Info("Successfully connected with GORM")
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s.SQL = db
	s.Dialect = DialectMySQL

	return nil
}
