package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events to a Redis pub/sub channel. Downstream
// gateways (websocket fan-out, SSE) subscribe to the channel; delivery
// guarantees belong to them, not to this package.
type RedisPublisher struct {
	rdb     *goredis.Client
	channel string
	logger  *slog.Logger
}

// RedisConfig configures the publisher.
type RedisConfig struct {
	Addr    string
	Channel string
	Logger  *slog.Logger
}

// NewRedisPublisher connects and verifies the Redis endpoint.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("notify: redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "dramatis.events"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}

	return &RedisPublisher{
		rdb:     rdb,
		channel: cfg.Channel,
		logger:  logger.With("component", "notify"),
	}, nil
}

// Publish encodes the event and pushes it to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
