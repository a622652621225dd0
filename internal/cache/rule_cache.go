package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"activity-categorizer/internal/config"
	"activity-categorizer/internal/metrics"
	"activity-categorizer/internal/models"
)

const (
	keySeparator = ":"
	globalScope  = "global"
)

// Entry is a cached rule lookup. A nil Rule records that no rule exists.
type Entry struct {
	Rule *models.AppCategoryRule `json:"rule,omitempty"`
}

// RemoteStore is a cache tier shared between replicas
type RemoteStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	InvalidateApp(ctx context.Context, appName string) error
	Purge(ctx context.Context) error
	Subscribe(ctx context.Context, handle func(Invalidation)) error
	Ping(ctx context.Context) error
}

// RuleKey builds the cache key for an application and scope
func RuleKey(appName string, orgID *uuid.UUID) string {
	scope := globalScope
	if orgID != nil {
		scope = orgID.String()
	}
	return appName + keySeparator + scope
}

// RuleCache keeps app rule lookups in a per-key TTL LRU, optionally backed
// by a shared remote tier
type RuleCache struct {
	local   *expirable.LRU[string, Entry]
	remote  RemoteStore
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.MetricsCollector

	// keys whose remote copy could not be deleted; the remote tier is
	// bypassed for them until the stale copy expires
	bypass *expirable.LRU[string, struct{}]

	// gen moves on every eviction; fillMu orders a fill's check against it
	gen    atomic.Uint64
	fillMu sync.Mutex
}

// NewRuleCache creates a rule cache. remote may be nil.
func NewRuleCache(cfg *config.CacheConfig, remote RemoteStore, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *RuleCache {
	size := cfg.RuleSize
	if size <= 0 {
		size = 10000
	}
	ttl := cfg.RuleTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &RuleCache{
		local:   expirable.NewLRU[string, Entry](size, nil, ttl),
		remote:  remote,
		ttl:     ttl,
		logger:  logger,
		metrics: metricsCollector,
		bypass:  expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// ProvideRuleCache wires the cache and its invalidation subscriber into the fx lifecycle
func ProvideRuleCache(lc fx.Lifecycle, cfg *config.Config, remote RemoteStore, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *RuleCache {
	c := NewRuleCache(&cfg.Cache, remote, logger, metricsCollector)
	if remote == nil {
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := remote.Subscribe(ctx, c.HandleInvalidation); err != nil {
					logger.Error("cache invalidation subscriber stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})

	return c
}

// Get returns a cached lookup
func (c *RuleCache) Get(ctx context.Context, key string) (Entry, bool) {
	if e, ok := c.local.Get(key); ok {
		c.metrics.RecordCacheOperation("get", "hit")
		return e, true
	}

	if c.remote != nil && !c.bypassed(key) {
		gen := c.gen.Load()
		e, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.Warn("remote rule cache read failed", zap.Error(err), zap.String("key", key))
		} else if e != nil {
			c.fillMu.Lock()
			if c.gen.Load() == gen {
				c.local.Add(key, *e)
			}
			c.fillMu.Unlock()
			c.metrics.RecordCacheOperation("get", "l2_hit")
			return *e, true
		}
	}

	c.metrics.RecordCacheOperation("get", "miss")
	return Entry{}, false
}

// Set stores a lookup in every tier
func (c *RuleCache) Set(ctx context.Context, key string, e Entry) {
	c.local.Add(key, e)

	if c.remote != nil && !c.bypassed(key) {
		if err := c.remote.Set(ctx, key, &e, c.ttl); err != nil {
			c.logger.Warn("remote rule cache write failed", zap.Error(err), zap.String("key", key))
		}
	}
}

// Generation identifies the eviction state. Take it before reading the
// database and hand it to Fill.
func (c *RuleCache) Generation() uint64 {
	return c.gen.Load()
}

// Fill stores a database lookup unless an eviction happened after gen was
// taken, so a read that raced with a write cannot cache the old rule. It
// reports whether the entry was stored.
func (c *RuleCache) Fill(ctx context.Context, key string, e Entry, gen uint64) bool {
	c.fillMu.Lock()
	if c.gen.Load() != gen {
		c.fillMu.Unlock()
		c.metrics.RecordCacheOperation("fill", "stale")
		return false
	}
	c.local.Add(key, e)
	c.fillMu.Unlock()

	if c.remote == nil || c.bypassed(key) {
		return true
	}
	if err := c.remote.Set(ctx, key, &e, c.ttl); err != nil {
		c.logger.Warn("remote rule cache write failed", zap.Error(err), zap.String("key", key))
		return true
	}
	// an eviction that landed while the remote write was in flight may
	// have run its delete first
	if c.gen.Load() != gen {
		if err := c.remote.Invalidate(ctx, key); err != nil {
			c.bypass.Add(key, struct{}{})
		}
	}
	return true
}

func (c *RuleCache) removeLocal(remove func()) {
	c.fillMu.Lock()
	c.gen.Add(1)
	remove()
	c.fillMu.Unlock()
}

// Evict drops one key from every tier before returning
func (c *RuleCache) Evict(ctx context.Context, key string) {
	c.removeLocal(func() { c.local.Remove(key) })
	c.metrics.RecordCacheOperation("evict", "ok")

	if c.remote == nil {
		return
	}
	if err := c.remote.Invalidate(ctx, key); err != nil {
		c.bypass.Add(key, struct{}{})
		c.metrics.RecordCacheOperation("evict", "error")
		c.logger.Warn("remote rule cache eviction failed, bypassing remote tier for key",
			zap.Error(err),
			zap.String("key", key))
	}
}

// EvictApp drops every scope cached for an application. Used when a global
// rule changes, since org scoped lookups fall back to it.
func (c *RuleCache) EvictApp(ctx context.Context, appName string) {
	c.removeLocal(func() { c.evictLocalApp(appName) })
	c.metrics.RecordCacheOperation("evict", "ok")

	if c.remote == nil {
		return
	}
	if err := c.remote.InvalidateApp(ctx, appName); err != nil {
		c.bypass.Add(appName+keySeparator, struct{}{})
		c.metrics.RecordCacheOperation("evict", "error")
		c.logger.Warn("remote rule cache eviction failed, bypassing remote tier for app",
			zap.Error(err),
			zap.String("app_name", appName))
	}
}

// Purge clears every tier
func (c *RuleCache) Purge(ctx context.Context) error {
	c.removeLocal(c.local.Purge)
	c.metrics.RecordCacheOperation("purge", "ok")

	if c.remote == nil {
		return nil
	}
	if err := c.remote.Purge(ctx); err != nil {
		c.metrics.RecordCacheOperation("purge", "error")
		return err
	}
	return nil
}

// Len returns the number of locally cached lookups
func (c *RuleCache) Len() int {
	return c.local.Len()
}

// Ping checks the remote tier when one is configured
func (c *RuleCache) Ping(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Ping(ctx)
}

// RemoteEnabled reports whether a shared tier is configured
func (c *RuleCache) RemoteEnabled() bool {
	return c.remote != nil
}

// HandleInvalidation applies an eviction broadcast from a peer
func (c *RuleCache) HandleInvalidation(inv Invalidation) {
	switch {
	case inv.Purge:
		c.removeLocal(c.local.Purge)
	case inv.App != "":
		c.removeLocal(func() { c.evictLocalApp(inv.App) })
	case inv.Key != "":
		c.removeLocal(func() { c.local.Remove(inv.Key) })
	}
}

func (c *RuleCache) evictLocalApp(appName string) {
	prefix := appName + keySeparator
	for _, k := range c.local.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.local.Remove(k)
		}
	}
}

func (c *RuleCache) bypassed(key string) bool {
	if c.bypass.Contains(key) {
		return true
	}
	if i := strings.LastIndex(key, keySeparator); i >= 0 {
		return c.bypass.Contains(key[:i+1])
	}
	return false
}
