package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
)

// Store holds short-lived display copies, such as each buyer's last issued
// token. Nothing in it is authoritative.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

// Module provides the cache store to the Fx graph.
var Module = fx.Provide(NewStore)

const tokenKeyPrefix = "handoff:token:"

// TokenKey is where the latest pickup token for a buyer is kept.
func TokenKey(buyerID int64) string {
	return tokenKeyPrefix + strconv.FormatInt(buyerID, 10)
}

// NewStore picks the backend named by CACHE_DRIVER.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	logger = logger.With(zap.String("cache_driver", cfg.Cache.Driver))

	switch cfg.Cache.Driver {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		lc.Append(fx.StartStopHook(
			func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis %s: %w", cfg.Cache.Redis.Addr, err)
				}
				logger.Info("token cache ready", zap.String("addr", cfg.Cache.Redis.Addr))
				return nil
			},
			client.Close,
		))
		return &redisStore{client: client, defaultTTL: cfg.Cache.DefaultTTL}, nil
	case "memory":
		logger.Info("token cache kept in process")
		return NewMemoryStore(cfg.Cache.DefaultTTL), nil
	case "noop":
		logger.Info("token cache disabled")
		return noopStore{}, nil
	}
	return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
}

type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error)               { return nil, ErrCacheMiss }
func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopStore) Delete(context.Context, string) error                      { return nil }

type redisStore struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
