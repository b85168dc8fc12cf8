package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisSink publishes events on a pub/sub channel and keeps the latest
// health update under <channel>:latest for late readers.
type RedisSink struct {
	rdb     redisClient
	channel string
}

// NewRedisSink creates a Redis client and verifies the connection
func NewRedisSink(cfg config.RedisConfig) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisSink(rdb, cfg.Channel), nil
}

func newRedisSink(rdb redisClient, channel string) *RedisSink {
	if channel == "" {
		channel = "platform-health"
	}
	return &RedisSink{rdb: rdb, channel: channel}
}

// Name implements Sink
func (s *RedisSink) Name() string { return "redis" }

// LatestKey is where the newest health update is stored
func (s *RedisSink) LatestKey() string {
	return s.channel + ":latest"
}

// Publish implements Sink
func (s *RedisSink) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	if event.Type == models.EventHealthUpdate {
		if err := s.rdb.Set(ctx, s.LatestKey(), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to store latest health update: %w", err)
		}
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
