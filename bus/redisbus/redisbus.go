// Package redisbus implements bus.Publisher and bus.Inbox on Redis
// Streams, grounded on the teacher's Redis pub/sub adapter
// (adapter/redis/redis.go) for config shape and retry/backoff, and on
// go-redis/v9's consumer-group API (XADD/XREADGROUP/XACK/XCLAIM) for
// the at-least-once, per-key-ordered delivery the request queue and
// execution monitor require.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/resourcedriver/bus"
)

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of publish retry attempts.
const DefaultRetries = 3

// DefaultBlock is how long Receive waits on XREADGROUP before polling again.
const DefaultBlock = 5 * time.Second

// DefaultClaimMinIdle is the minimum idle time before a pending entry
// is eligible for XCLAIM by another consumer (spec §5 redelivery).
const DefaultClaimMinIdle = 30 * time.Second

// Config configures a Redis Streams connection.
type Config struct {
	// URL is the Redis connection URL (required). Format:
	// redis://[:password@]host:port[/db]
	URL string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of publish retry attempts on failure (default 3).
	Retries int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	return c
}

func newClient(cfg Config) (*goredis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redisbus: URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisbus: invalid URL: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// Publisher publishes envelopes via XADD, one stream per topic.
type Publisher struct {
	cfg    Config
	client *goredis.Client
}

// NewPublisher constructs a Publisher from cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, client: client}, nil
}

// Publish XADDs the envelope to the stream named by env.Topic, retrying
// with exponential backoff on transport failure, matching the teacher's
// adapter/redis retry shape.
func (p *Publisher) Publish(ctx context.Context, env bus.Envelope) error {
	var lastErr error
	attempts := 1 + p.cfg.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redisbus: context canceled: %w", err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("redisbus: context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		lastErr = p.client.XAdd(publishCtx, &goredis.XAddArgs{
			Stream: env.Topic,
			Values: map[string]any{"key": env.Key, "body": env.Body, "tenant_id": env.TenantID},
		}).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("redisbus: publish failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ bus.Publisher = (*Publisher)(nil)
