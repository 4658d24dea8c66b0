package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMySQL         = "mysql"
	BackendSQLite        = "sqlite"
	BackendMongo         = "mongo"
	BackendElasticsearch = "elasticsearch"
)

type Config struct {
	GeneralVersion string `mapstructure:"GENERAL_VERSION"`
	ServerPort     int    `mapstructure:"PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`

	Backend               string        `mapstructure:"BENCH_BACKEND"`
	InsertChunkSize       int           `mapstructure:"BENCH_INSERT_CHUNK_SIZE"`
	ScanPageSize          int           `mapstructure:"BENCH_SCAN_PAGE_SIZE"`
	RequestTimeout        time.Duration `mapstructure:"BENCH_REQUEST_TIMEOUT"`
	FailOnStartupError    bool          `mapstructure:"BENCH_FAIL_ON_STARTUP_ERROR"`
	DefaultNumberOfUsers  int           `mapstructure:"BENCH_DEFAULT_NUMBER_OF_USERS"`
	MaxNumberOfUsers      int           `mapstructure:"BENCH_MAX_NUMBER_OF_USERS"` // 0 disables the cap
	ElasticBulkBatchSize  int           `mapstructure:"BENCH_ELASTIC_BULK_SIZE"`
	SQLCreateBatchSize    int           `mapstructure:"BENCH_SQL_CREATE_BATCH_SIZE"`
	MigrateOnStartup      bool          `mapstructure:"BENCH_MIGRATE_ON_STARTUP"`
	DatabaseHost          string        `mapstructure:"MYSQL_HOST"`
	DatabasePort          int           `mapstructure:"MYSQL_PORT"`
	DatabaseName          string        `mapstructure:"MYSQL_DATABASE"`
	DatabaseUser          string        `mapstructure:"MYSQL_USER"`
	DatabasePassword      string        `mapstructure:"MYSQL_PASSWORD"`
	SQLitePath            string        `mapstructure:"SQLITE_PATH"`
	MongoURI              string        `mapstructure:"MONGO_URI"`
	MongoDatabase         string        `mapstructure:"MONGO_DATABASE"`
	ElasticsearchURL      string        `mapstructure:"ELASTICSEARCH_URL"`
	ElasticsearchUsername string        `mapstructure:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string        `mapstructure:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex    string        `mapstructure:"ELASTICSEARCH_INDEX"`

	// Benchmark run history, always SQLite.
	DatabaseDbPath       string `mapstructure:"DB_PATH"`
	DatabaseCacheAddress string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DB_CACHE_PORT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GENERAL_VERSION", "dev")
	v.SetDefault("PORT", 3000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("BENCH_BACKEND", BackendSQLite)
	v.SetDefault("BENCH_INSERT_CHUNK_SIZE", 200000)
	v.SetDefault("BENCH_SCAN_PAGE_SIZE", 10000)
	v.SetDefault("BENCH_REQUEST_TIMEOUT", 10*time.Minute)
	v.SetDefault("BENCH_FAIL_ON_STARTUP_ERROR", true)
	v.SetDefault("BENCH_DEFAULT_NUMBER_OF_USERS", 1000)
	v.SetDefault("BENCH_MAX_NUMBER_OF_USERS", 10000000)
	v.SetDefault("BENCH_ELASTIC_BULK_SIZE", 5000)
	v.SetDefault("BENCH_SQL_CREATE_BATCH_SIZE", 1000)
	v.SetDefault("BENCH_MIGRATE_ON_STARTUP", true)

	v.SetDefault("MYSQL_HOST", "localhost")
	v.SetDefault("MYSQL_PORT", 3306)
	v.SetDefault("MYSQL_DATABASE", "userbench")
	v.SetDefault("MYSQL_USER", "root")
	v.SetDefault("MYSQL_PASSWORD", "")
	v.SetDefault("SQLITE_PATH", "data/users.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "userbench")
	v.SetDefault("ELASTICSEARCH_URL", "http://localhost:9200")
	v.SetDefault("ELASTICSEARCH_USERNAME", "")
	v.SetDefault("ELASTICSEARCH_PASSWORD", "")
	v.SetDefault("ELASTICSEARCH_INDEX", "users")

	v.SetDefault("DB_PATH", "data/results.db")
	v.SetDefault("DB_CACHE_ADDRESS", "")
	v.SetDefault("DB_CACHE_PORT", 6379)
}

// InitConfig loads .env from the working directory when present, then the
// environment.
func InitConfig() (Config, error) {
	return Load(".env")
}

// Load reads configuration from path (optional) and the environment. The
// environment always wins over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, key := range v.AllKeys() {
		if err := v.BindEnv(strings.ToUpper(key)); err != nil {
			return Config{}, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMySQL, BackendSQLite, BackendMongo, BackendElasticsearch:
	default:
		return fmt.Errorf("unsupported BENCH_BACKEND %q", c.Backend)
	}

	if c.InsertChunkSize <= 0 {
		return fmt.Errorf("BENCH_INSERT_CHUNK_SIZE must be positive, got %d", c.InsertChunkSize)
	}
	if c.ScanPageSize <= 0 {
		return fmt.Errorf("BENCH_SCAN_PAGE_SIZE must be positive, got %d", c.ScanPageSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("BENCH_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.DefaultNumberOfUsers < 0 {
		return fmt.Errorf("BENCH_DEFAULT_NUMBER_OF_USERS must be >= 0, got %d", c.DefaultNumberOfUsers)
	}
	if c.MaxNumberOfUsers < 0 {
		return fmt.Errorf("BENCH_MAX_NUMBER_OF_USERS must be >= 0, got %d", c.MaxNumberOfUsers)
	}
	if c.MaxNumberOfUsers > 0 && c.DefaultNumberOfUsers > c.MaxNumberOfUsers {
		return fmt.Errorf("BENCH_DEFAULT_NUMBER_OF_USERS %d exceeds BENCH_MAX_NUMBER_OF_USERS %d",
			c.DefaultNumberOfUsers, c.MaxNumberOfUsers)
	}
	if c.DatabaseDbPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.ServerPort <= 0 {
		return fmt.Errorf("PORT must be positive, got %d", c.ServerPort)
	}

	return nil
}

// CacheEnabled reports whether a valkey address was configured.
func (c Config) CacheEnabled() bool {
	return c.DatabaseCacheAddress != ""
}
