package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versioned stores JSON payloads under keys suffixed with a namespace version.
// Bumping the version orphans every key written before it.
type Versioned struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
	channel    string
}

// NewVersioned builds a cache for namespace. A nil client disables caching.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{
		client:     client,
		ttl:        ttl,
		versionKey: namespace + ":version",
		channel:    namespace + ".bump",
	}
}

// Enabled reports whether a Redis client is attached.
func (c *Versioned) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current namespace version, initialising when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, fmt.Errorf("platform/cache: init version: %w", err)
		}
		return c.client.Get(ctx, c.versionKey).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("platform/cache: get version: %w", err)
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey, ver, 0).Err(); err != nil {
			return 0, fmt.Errorf("platform/cache: reset version: %w", err)
		}
	}
	return ver, nil
}

// BuildKey joins parts and appends the current version.
func (c *Versioned) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if !c.Enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return joined + ":" + strconv.FormatInt(ver, 10), nil
}

// FetchJSON decodes a cached value into dest or populates it from loader.
// Loader errors are returned without writing to the cache.
func (c *Versioned) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if c.Enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("platform/cache: get %s: %w", key, err)
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.Enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return fmt.Errorf("platform/cache: set %s: %w", key, err)
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the namespace and notifies other processes.
func (c *Versioned) Bump(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return fmt.Errorf("platform/cache: bump: %w", err)
	}
	return c.client.Publish(ctx, c.channel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation applies version bumps published by other processes
// until ctx is cancelled.
func (c *Versioned) ListenForInvalidation(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("platform/cache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					_ = c.client.Incr(ctx, c.versionKey).Err()
					continue
				}
				current, err := c.client.Get(ctx, c.versionKey).Int64()
				if err != nil || current < ver {
					_ = c.client.Set(ctx, c.versionKey, ver, 0).Err()
				}
			}
		}
	}()
	return nil
}
