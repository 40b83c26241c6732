package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Oliskey-School/School-app--sub008/pkg/config"
)

const (
	clientName  = "timetable-api"
	pingTimeout = 5 * time.Second
)

// Options maps cfg to go-redis options. Reads and writes get short
// timeouts: the cache is optional and a slow Redis must not hold up a solve.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  pingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// NewRedis returns a client after a successful ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts := Options(cfg)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}
