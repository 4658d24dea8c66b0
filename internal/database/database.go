package database

import (
	"context"
	"time"

	"userbench/config"
	logg "userbench/internal/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/valkey-io/valkey-go"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

type CacheClient valkey.Client

type Cache struct {
	Runs CacheClient
}

// DB holds every store handle the service uses. Results is the run history
// database and is always SQLite. Exactly one of SQL, Mongo or Elastic is set
// once ConnectBackend succeeds.
type DB struct {
	SQL     *gorm.DB
	Dialect string
	Mongo   *mongo.Database
	Elastic *elasticsearch.Client
	Results *gorm.DB
	Cache   Cache
	log     logg.Logger

	mongoClient *mongo.Client
}

// New opens the run history database and, when configured, the cache. The
// benchmark backend is connected separately by ConnectBackend.
func New(config config.Config) (DB, error) {
	log := logg.New("database").Function("New")

	log.Info("Initializing database")
	db := &DB{log: logg.New("database")}

	err := db.initializeResultsDB(config)
	if err != nil {
		return DB{}, log.Err("failed to initialize results database", err)
	}

	if config.CacheEnabled() {
		err = db.initializeCacheDB(config)
		if err != nil {
			_ = db.Close()
			return DB{}, log.Err("failed to initialize cache database", err)
		}
	} else {
		log.Info("Cache address not configured, run cache disabled")
	}

	return *db, nil
}

// ConnectBackend opens the store selected by config.Backend.
func (s *DB) ConnectBackend(ctx context.Context, config config.Config) error {
	log := s.log.Function("ConnectBackend")
	log.Info("Connecting benchmark backend", "backend", config.Backend)

	switch config.Backend {
	case "mysql":
		return s.initializeMySQLDB(ctx, config)
	case "sqlite":
		return s.initializeSQLiteDB(gormConfig(config), config)
	case "mongo":
		return s.initializeMongoDB(ctx, config)
	case "elasticsearch":
		return s.initializeElasticDB(ctx, config)
	default:
		return log.Error("unsupported backend", "backend", config.Backend)
	}
}

func (s *DB) initializeResultsDB(config config.Config) error {
	log := s.log.Function("initializeResultsDB")

	db, err := openSQLite(config.DatabaseDbPath, gormConfig(config), log)
	if err != nil {
		return err
	}

	if err := Migrate(db, DialectSQLite, ResultsMigrations()); err != nil {
		return log.Err("failed to migrate results database", err)
	}

	s.Results = db
	return nil
}

func (s *DB) Close() (err error) {
	closeGorm := func(db *gorm.DB, name string) {
		if db == nil {
			return
		}
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return
		}
		if closeErr := sqlDB.Close(); closeErr != nil {
			err = s.log.Err("failed to close database", closeErr, "database", name)
		}
	}

	closeGorm(s.SQL, "backend")
	closeGorm(s.Results, "results")

	if s.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeErr := s.mongoClient.Disconnect(ctx); closeErr != nil {
			err = s.log.Err("failed to disconnect mongo", closeErr)
		}
	}

	if s.Cache.Runs != nil {
		s.Cache.Runs.Close()
	}

	return
}

func (s *DB) SQLWithContext(ctx context.Context) *gorm.DB {
	return s.SQL.WithContext(ctx)
}

func (s *DB) ResultsWithContext(ctx context.Context) *gorm.DB {
	return s.Results.WithContext(ctx)
}

func (s *DB) FlushAllCaches() error {
	log := s.log.Function("FlushAllCaches")
	log.Info("Flushing all cache databases")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cacheClients := []struct {
		client CacheClient
		name   string
	}{
		{s.Cache.Runs, "Runs"},
	}

	for _, cache := range cacheClients {
		if cache.client != nil {
			if err := cache.client.Do(ctx, cache.client.B().Flushdb().Build()).Error(); err != nil {
				return log.Err("Failed to flush cache database", err, "cache", cache.name)
			}
			log.Info("Successfully flushed cache database", "cache", cache.name)
		}
	}

	log.Info("All cache databases flushed successfully")
	return nil
}
