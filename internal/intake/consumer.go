package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list submissions arrive on.
const DefaultQueue = "dramatis.tasks"

// Consumer blocks on the Redis task list and hands decoded submissions to
// the launcher. Delivery guarantees belong to the queue; a payload popped
// here is ours to run or to drop with a log line.
type Consumer struct {
	rdb      *goredis.Client
	queue    string
	launcher *Launcher
	logger   *slog.Logger
}

// ConsumerConfig configures the queue consumer.
type ConsumerConfig struct {
	Addr     string
	Queue    string
	Launcher *Launcher
	Logger   *slog.Logger
}

// NewConsumer connects and verifies the Redis endpoint.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("intake: redis address is required")
	}
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("intake: launcher is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
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
		return nil, fmt.Errorf("intake: redis ping: %w", err)
	}

	return &Consumer{
		rdb:      rdb,
		queue:    cfg.Queue,
		launcher: cfg.Launcher,
		logger:   logger.With("component", "intake"),
	}, nil
}

// Run consumes submissions until the context is cancelled. Malformed
// payloads and launch failures are logged and skipped, never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consuming task queue", "queue", c.queue)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.rdb.BLPop(ctx, 5*time.Second, c.queue).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		sub, err := Decode([]byte(res[1]))
		if err != nil {
			c.logger.Error("dropping malformed submission", "error", err)
			continue
		}

		runID, err := c.launcher.Launch(sub)
		if err != nil {
			c.logger.Error("launch failed", "book_id", sub.BookID, "error", err)
			continue
		}
		c.logger.Info("run launched", "run_id", runID, "book_id", sub.BookID)
	}
}

// Close releases the Redis connection.
func (c *Consumer) Close() error {
	return c.rdb.Close()
}
