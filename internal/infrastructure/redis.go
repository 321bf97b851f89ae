package infrastructure

import (
	"context"
	"errors"
	"strings"

	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient parses the cache dsn and waits until the server answers a
// PING, retrying with the postgres backoff defaults.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.CacheDSN) == "" {
		return nil, errors.New("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cfg.CacheDSN)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	policy := newRetryPolicy(cfg.MaxRetry, 0, 0, 0)
	err = policy.do(ctx, "redis "+maskDSN(cfg.CacheDSN), defaultConnectTimeout, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	logrus.WithField("addr", options.Addr).Info("redis connection established")
	return client, nil
}
