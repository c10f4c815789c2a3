package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI             string
	Database        string
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns default connection settings.
func DefaultConfig() Config {
	return Config{
		URI:             "mongodb://127.0.0.1:27017",
		Database:        "blabz",
		MaxPoolSize:     50,
		MinPoolSize:     2,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  15 * time.Second,
	}
}

// Mongo bundles the client and the selected database.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect dials MongoDB and pings the primary before returning.
func Connect(ctx context.Context, cfg Config, logger logging.Logger) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database name is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("blabz").
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.WithFields(logging.Fields{
		"database":      cfg.Database,
		"max_pool_size": cfg.MaxPoolSize,
		"min_pool_size": cfg.MinPoolSize,
	}).Info("MongoDB connected")

	return &Mongo{Client: client, DB: client.Database(cfg.Database)}, nil
}

// Ping checks the primary is reachable; used by health checks.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects with a bounded timeout.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(ctx)
}
