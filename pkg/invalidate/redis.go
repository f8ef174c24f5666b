package invalidate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillpress/quill/pkg/models"
)

const (
	defaultRedisKeyPrefix = "quill:cache:"
	defaultRedisChannel   = "quill.invalidations"
)

// RedisBackend drops cached renderings of the affected items and publishes
// the event for subscribers such as the static-site builder.
type RedisBackend struct {
	client    *redis.Client
	channel   string
	keyPrefix string
}

// RedisBackendConfig holds redis backend configuration.
type RedisBackendConfig struct {
	URL       string
	Channel   string
	KeyPrefix string
}

// NewRedisBackend connects to redis and verifies the connection.
func NewRedisBackend(cfg RedisBackendConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client, cfg.Channel, cfg.KeyPrefix), nil
}

// NewRedisBackendWithClient creates a backend from an existing client.
func NewRedisBackendWithClient(client *redis.Client, channel, keyPrefix string) *RedisBackend {
	if channel == "" {
		channel = defaultRedisChannel
	}
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisBackend{
		client:    client,
		channel:   channel,
		keyPrefix: keyPrefix,
	}
}

func (b *RedisBackend) Name() string {
	return "redis"
}

// ItemKey returns the cache key of one rendered item.
func (b *RedisBackend) ItemKey(c models.Collection, nid int) string {
	return fmt.Sprintf("%s%s:%d", b.keyPrefix, c, nid)
}

// ListKey returns the cache key of a collection's rendered listing.
func (b *RedisBackend) ListKey(c models.Collection) string {
	return fmt.Sprintf("%s%s:list", b.keyPrefix, c)
}

func (b *RedisBackend) Invalidate(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return NewBackendError(b.Name(), "marshal", err)
	}

	keys := make([]string, 0, len(ev.IDs)+1)
	for _, id := range ev.IDs {
		keys = append(keys, b.ItemKey(ev.Collection, id))
	}
	keys = append(keys, b.ListKey(ev.Collection))

	pipe := b.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.Publish(ctx, b.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewBackendError(b.Name(), "delete+publish", err)
	}
	return nil
}

// Close closes the redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
