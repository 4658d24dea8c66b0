package database

import (
	"context"
	"time"

	"userbench/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func (s *DB) initializeMongoDB(ctx context.Context, config config.Config) error {
	log := s.log.Function("initializeMongoDB")

	if config.MongoURI == "" || config.MongoDatabase == "" {
		return log.Error("mongo uri or database is empty")
	}

	log.Info("Connecting to mongo", "database", config.MongoDatabase)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(config.MongoURI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return log.Err("failed to connect to mongo", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return log.Err("failed to ping mongo", err)
	}

	log.Info("Successfully connected to mongo")
	s.mongoClient = client
	s.Mongo = client.Database(config.MongoDatabase)

	return nil
}
