package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"userbench/config"

	"github.com/valkey-io/valkey-go"
)

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")

	if config.DatabaseCacheAddress == "" || config.DatabaseCachePort == 0 {
		return log.Error("cache address or port is empty",
			"address", config.DatabaseCacheAddress,
			"port", config.DatabaseCachePort)
	}

	address := fmt.Sprintf("%s:%d", config.DatabaseCacheAddress, config.DatabaseCachePort)
	log.Info("Connecting to cache", "address", address)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{address},
		SelectDB:     0,
		DisableCache: true,
	})
	if err != nil {
		return log.Err("failed to create cache client", err, "address", address)
	}

	s.Cache.Runs = client
	return nil
}

// CacheBuilder is a fluent wrapper for single-key JSON values.
type CacheBuilder struct {
	client  CacheClient
	key     string
	prefix  string
	value   any
	ttl     time.Duration
	context context.Context
}

func NewCacheBuilder(client CacheClient, key any) *CacheBuilder {
	return &CacheBuilder{
		client:  client,
		key:     fmt.Sprint(key),
		context: context.Background(),
	}
}

func (cb *CacheBuilder) WithPrefix(prefix string) *CacheBuilder {
	cb.prefix = prefix
	return cb
}

func (cb *CacheBuilder) WithStruct(value any) *CacheBuilder {
	cb.value = value
	return cb
}

func (cb *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	cb.ttl = ttl
	return cb
}

func (cb *CacheBuilder) WithContext(ctx context.Context) *CacheBuilder {
	if ctx != nil {
		cb.context = ctx
	}
	return cb
}

func (cb *CacheBuilder) Key() string {
	if cb.prefix == "" {
		return cb.key
	}
	return cb.prefix + ":" + cb.key
}

func (cb *CacheBuilder) Set() error {
	if cb.client == nil {
		return nil
	}

	data, err := json.Marshal(cb.value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value %s: %w", cb.Key(), err)
	}

	cmd := cb.client.B().Set().Key(cb.Key()).Value(string(data))
	if cb.ttl > 0 {
		return cb.client.Do(cb.context, cmd.ExSeconds(int64(cb.ttl.Seconds())).Build()).Error()
	}
	return cb.client.Do(cb.context, cmd.Build()).Error()
}

// Get decodes the cached value into target. found is false on a miss or when
// no cache is configured.
func (cb *CacheBuilder) Get(target any) (found bool, err error) {
	if cb.client == nil {
		return false, nil
	}

	data, err := cb.client.Do(cb.context, cb.client.B().Get().Key(cb.Key()).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", cb.Key(), err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache key %s: %w", cb.Key(), err)
	}
	return true, nil
}

func (cb *CacheBuilder) Delete() error {
	if cb.client == nil {
		return nil
	}
	return cb.client.Do(cb.context, cb.client.B().Del().Key(cb.Key()).Build()).Error()
}
