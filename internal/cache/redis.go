package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
)

const (
	// Cache key prefix: acat:<app>:<org|global>
	AppCategoryPrefix = "acat:"

	// Invalidation message prefixes
	invalidateKey   = "key:"
	invalidateApp   = "app:"
	invalidatePurge = "purge"
)

// RedisCache is the shared second tier of the rule cache. Evictions are
// broadcast on a pub/sub channel so every replica drops its local copy.
type RedisCache struct {
	client  *redis.Client
	config  *config.RedisConfig
	channel string
	logger  *zap.Logger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg *config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("database", cfg.Database))

	channel := cfg.InvalidationChannel
	if channel == "" {
		channel = "acat:invalidate"
	}

	return &RedisCache{
		client:  client,
		config:  cfg,
		channel: channel,
		logger:  logger,
	}, nil
}

// NewRemoteStore provides the shared tier when Redis is enabled, nil otherwise
func NewRemoteStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (RemoteStore, error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, rule cache is process local")
		return nil, nil
	}

	rc, err := NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing redis connection")
			return rc.Close()
		},
	})

	return rc, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func redisKey(key string) string {
	return AppCategoryPrefix + key
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get retrieves a cached lookup. A miss returns nil, nil.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	start := time.Now()
	rk := redisKey(key)

	data, err := c.client.Get(ctx, rk).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.logger.Debug("app category cache miss",
				zap.String("key", rk),
				zap.Duration("duration", time.Since(start)))
			return nil, nil
		}
		c.logger.Error("failed to get app category from cache",
			zap.Error(err),
			zap.String("key", rk))
		return nil, fmt.Errorf("failed to get app category from cache: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("failed to unmarshal app category from cache",
			zap.Error(err),
			zap.String("key", rk))
		return nil, fmt.Errorf("failed to unmarshal app category: %w", err)
	}

	return &entry, nil
}

// Set stores a lookup result with a TTL
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	rk := redisKey(key)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal app category: %w", err)
	}

	if err := c.client.Set(ctx, rk, data, ttl).Err(); err != nil {
		c.logger.Error("failed to set app category in cache",
			zap.Error(err),
			zap.String("key", rk))
		return fmt.Errorf("failed to set app category in cache: %w", err)
	}

	return nil
}

// Invalidate deletes one key and tells peers to drop it
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		c.logger.Error("failed to invalidate app category",
			zap.Error(err),
			zap.String("key", key))
		return fmt.Errorf("failed to invalidate app category: %w", err)
	}

	return c.publish(ctx, invalidateKey+key)
}

// InvalidateApp deletes every scope cached for an application
func (c *RedisCache) InvalidateApp(ctx context.Context, appName string) error {
	if err := c.deleteMatching(ctx, redisKey(globEscaper.Replace(appName)+keySeparator+"*")); err != nil {
		return err
	}
	return c.publish(ctx, invalidateApp+appName)
}

// Purge deletes every cached app category
func (c *RedisCache) Purge(ctx context.Context) error {
	if err := c.deleteMatching(ctx, AppCategoryPrefix+"*"); err != nil {
		return err
	}
	return c.publish(ctx, invalidatePurge)
}

func (c *RedisCache) deleteMatching(ctx context.Context, pattern string) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("failed to batch invalidate cache keys",
			zap.Error(err),
			zap.Int("key_count", len(keys)))
		return fmt.Errorf("failed to batch invalidate: %w", err)
	}

	c.logger.Debug("cache keys invalidated",
		zap.String("pattern", pattern),
		zap.Int("key_count", len(keys)))

	return nil
}

func (c *RedisCache) publish(ctx context.Context, msg string) error {
	if err := c.client.Publish(ctx, c.channel, msg).Err(); err != nil {
		c.logger.Warn("failed to publish cache invalidation",
			zap.Error(err),
			zap.String("message", msg))
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe delivers invalidation messages to handle until ctx is done
func (c *RedisCache) Subscribe(ctx context.Context, handle func(Invalidation)) error {
	sub := c.client.Subscribe(ctx, c.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	c.logger.Info("listening for cache invalidations", zap.String("channel", c.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if inv, ok := parseInvalidation(msg.Payload); ok {
				handle(inv)
			}
		}
	}
}

// Ping tests Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Invalidation is a decoded eviction broadcast
type Invalidation struct {
	Key   string
	App   string
	Purge bool
}

func parseInvalidation(payload string) (Invalidation, bool) {
	switch {
	case payload == invalidatePurge:
		return Invalidation{Purge: true}, true
	case strings.HasPrefix(payload, invalidateKey):
		return Invalidation{Key: strings.TrimPrefix(payload, invalidateKey)}, true
	case strings.HasPrefix(payload, invalidateApp):
		return Invalidation{App: strings.TrimPrefix(payload, invalidateApp)}, true
	}
	return Invalidation{}, false
}
