package database

import (
	"context"
	"time"

	"userbench/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewElasticClient builds a client without contacting the cluster.
func NewElasticClient(config config.Config) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{config.ElasticsearchURL},
		Username:      config.ElasticsearchUsername,
		Password:      config.ElasticsearchPassword,
		MaxRetries:    0,
		DisableRetry:  true,
		EnableMetrics: false,
	})
}

func (s *DB) initializeElasticDB(ctx context.Context, config config.Config) error {
	log := s.log.Function("initializeElasticDB")

	if config.ElasticsearchURL == "" {
		return log.Error("elasticsearch url is empty")
	}

	log.Info("Connecting to elasticsearch", "url", config.ElasticsearchURL)

	client, err := NewElasticClient(config)
	if err != nil {
		return log.Err("failed to create elasticsearch client", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return log.Err("failed to ping elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return log.Error("elasticsearch ping returned an error", "status", res.Status())
	}

	log.Info("Successfully connected to elasticsearch")
	s.Elastic = client

	return nil
}
