package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// Config configures a topology-agnostic Redis connection.
type Config struct {
	Addrs        []string // one addr: standalone, several: cluster seeds
	MasterName   string   // sentinel only
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ParseURL turns REDIS_URL into a Config. A single redis:// URL selects a
// standalone node; a comma-separated list of URLs selects cluster seeds,
// with credentials and DB taken from the first entry.
func ParseURL(raw string) (Config, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Config{}, fmt.Errorf("redis url is required")
	}

	var cfg Config
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		opts, err := goredis.ParseURL(part)
		if err != nil {
			return Config{}, fmt.Errorf("parse redis url %d: %w", i, err)
		}
		if len(cfg.Addrs) == 0 {
			cfg.Username = opts.Username
			cfg.Password = opts.Password
			cfg.DB = opts.DB
			cfg.DialTimeout = opts.DialTimeout
			cfg.ReadTimeout = opts.ReadTimeout
			cfg.WriteTimeout = opts.WriteTimeout
		}
		cfg.Addrs = append(cfg.Addrs, opts.Addr)
	}
	if len(cfg.Addrs) == 0 {
		return Config{}, fmt.Errorf("redis url is required")
	}
	return cfg, nil
}

// NewUniversalClient creates a client for the topology described by cfg and
// pings it. go-redis routes internally: MasterName set → Sentinel, multiple
// Addrs → Cluster, single Addr → standalone.
func NewUniversalClient(ctx context.Context, cfg Config) (goredis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("at least one redis address is required")
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout),
		ReadTimeout:  orDefault(cfg.ReadTimeout),
		WriteTimeout: orDefault(cfg.WriteTimeout),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Connect parses REDIS_URL and opens the client.
func Connect(ctx context.Context, redisURL string) (goredis.UniversalClient, error) {
	cfg, err := ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewUniversalClient(ctx, cfg)
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
