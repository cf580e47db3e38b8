package drivers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/sal/internal/engine"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures a Redis backend
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisDriver stores blobs as Redis strings, with metadata in a hash
// next to each blob
type RedisDriver struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisDriver creates a Redis driver. The connection is lazy; use
// HealthCheck to verify it.
func NewRedisDriver(cfg RedisConfig, logger *zap.Logger) (*RedisDriver, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis driver: addr is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sal:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisDriverWithClient(client, prefix, cfg.TTL, logger), nil
}

// NewRedisDriverWithClient wraps an existing client
func NewRedisDriverWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisDriver {
	return &RedisDriver{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// Name returns the driver name
func (d *RedisDriver) Name() string {
	return "redis"
}

func (d *RedisDriver) blobKey(key string) string { return d.keyPrefix + "blob:" + key }
func (d *RedisDriver) metaKey(key string) string { return d.keyPrefix + "meta:" + key }

// Put stores the blob and its metadata in one transaction
func (d *RedisDriver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, d.blobKey(key), data, d.ttl)
		pipe.Del(ctx, d.metaKey(key))
		if len(metadata) > 0 {
			pipe.HSet(ctx, d.metaKey(key), metadata)
			if d.ttl > 0 {
				pipe.Expire(ctx, d.metaKey(key), d.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// Get reads a blob
func (d *RedisDriver) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := d.client.Get(ctx, d.blobKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Metadata returns the metadata stored with key
func (d *RedisDriver) Metadata(ctx context.Context, key string) (map[string]string, error) {
	md, err := d.client.HGetAll(ctx, d.metaKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis metadata %s: %w", key, err)
	}
	return md, nil
}

// HealthCheck pings the server
func (d *RedisDriver) HealthCheck(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the client
func (d *RedisDriver) Close() error {
	return d.client.Close()
}
