package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/logsmith/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetPattern caches an oracle candidate under a sample-hash key.
func (c *Client) SetPattern(ctx context.Context, sampleHash, pattern string, ttl time.Duration) error {
	err := c.client.Set(ctx, fmt.Sprintf("pattern:%s", sampleHash), pattern, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set pattern cache: %w", err)
	}

	logger.Debug("Pattern cached", zap.String("sample_hash", sampleHash), zap.Duration("ttl", ttl))
	return nil
}

// GetPattern returns a cached candidate, reporting a miss without error.
func (c *Client) GetPattern(ctx context.Context, sampleHash string) (string, bool, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("pattern:%s", sampleHash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get pattern cache: %w", err)
	}

	logger.Debug("Pattern cache hit", zap.String("sample_hash", sampleHash))
	return val, true, nil
}

// InvalidateGroup drops cached candidates for one group, used after raw
// document ingestion changes what a sample would contain.
func (c *Client) InvalidateGroup(ctx context.Context, group string) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("pattern:%s:*", group), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	return nil
}
