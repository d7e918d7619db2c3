package server

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/logging"
)

// PredictionCache stores prediction responses by key. Get returns nil, nil
// on a miss.
type PredictionCache interface {
	Get(ctx context.Context, key string) (*Prediction, error)
	Set(ctx context.Context, key string, p *Prediction) error
}

// CacheKey scopes a payload digest to the bundle that produced the answer,
// so a reload never serves stale predictions.
func CacheKey(runID string, payload []byte) string {
	sum := md5.Sum(payload)
	return "prediction:" + runID + ":" + hex.EncodeToString(sum[:])
}

// RedisCache is a PredictionCache backed by redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects lazily; call Ping to check the server.
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{client: client, ttl: cfg.TTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Prediction, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		logging.L().Error("cannot decode cached prediction", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, p *Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
