// Package redis notifies pool consumers through Redis.
//
// Every run is published on a per-target channel
// (<channel>:<host>:<port>), so a replay server subscribes only to the
// capture source it serves. Runs that replaced the pool also update the hash
// <pool-key>:<host>:<port>, letting a consumer that starts later find the
// current pool without having seen the message.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/chunkprobe/adapter"
)

const (
	DefaultChannel = "chunkprobe:capture_completed"
	DefaultPoolKey = "chunkprobe:pool"
	DefaultTimeout = 5 * time.Second
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the channel prefix; the target is appended.
	Channel string
	// PoolKey is the hash key prefix for the current pool record.
	PoolKey string
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retries int
}

// Adapter publishes capture events with PUBLISH and records the current
// pool with HSET, pipelined in one round trip.
type Adapter struct {
	config  Config
	client  *goredis.Client
	retrier adapter.Retrier
}

// New creates a Redis adapter. The connection is opened lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.PoolKey == "" {
		cfg.PoolKey = DefaultPoolKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{
		config:  cfg,
		client:  goredis.NewClient(opts),
		retrier: adapter.Retrier{Name: "redis", Retries: cfg.Retries},
	}, nil
}

// ChannelFor returns the channel events for target are published on.
func (a *Adapter) ChannelFor(target string) string {
	return joinKey(a.config.Channel, target)
}

// PoolKeyFor returns the hash holding the current pool record for target.
func (a *Adapter) PoolKeyFor(target string) string {
	return joinKey(a.config.PoolKey, target)
}

// Publish announces the run and, when the pool changed, records it.
func (a *Adapter) Publish(ctx context.Context, event *adapter.CaptureCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := a.ChannelFor(event.Target)
	key := a.PoolKeyFor(event.Target)

	return a.retrier.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(attemptCtx, func(pipe goredis.Pipeliner) error {
			if event.PoolChanged {
				pipe.HSet(attemptCtx, key,
					"run_id", event.RunID,
					"pool_dir", event.PoolDir,
					"files", strconv.Itoa(len(event.Files)),
					"timestamp", event.Timestamp,
					"event", string(body),
				)
			}
			pipe.Publish(attemptCtx, channel, body)
			return nil
		})
		return err
	})
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func joinKey(prefix, target string) string {
	if target == "" {
		return prefix
	}
	return strings.TrimSuffix(prefix, ":") + ":" + target
}

var _ adapter.Adapter = (*Adapter)(nil)
