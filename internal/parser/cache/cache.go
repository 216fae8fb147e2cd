// Package cache memoises parsed conditions in Redis. Concurrent misses for
// the same query share one parse, and Redis failures degrade to parsing
// without the cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/query"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "qp:"

// Store is the part of the Redis client the cache uses. Misses are reported
// with an error for which pkgredis.IsNilError is true.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

type ConditionCache struct {
	store   Store
	parser  *query.Parser
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache in front of parser. m may be nil.
func New(store Store, parser *query.Parser, cfg config.RedisConfig, m *metrics.Metrics) *ConditionCache {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &ConditionCache{
		store:   store,
		parser:  parser,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "condition-cache"),
	}
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.CircuitBreakerState.WithLabelValues("redis").Set(float64(resilience.StateClosed))
	}
	c.breaker = resilience.NewCircuitBreaker("redis", cbCfg)
	return c
}

// GetOrParse returns the cached condition for q, parsing and storing it on
// a miss. The boolean reports a cache hit.
func (c *ConditionCache) GetOrParse(ctx context.Context, q string) (query.Condition, bool, error) {
	key := c.Key(q)
	if cond, ok := c.get(ctx, key); ok {
		c.hit()
		return cond, true, nil
	}
	c.miss()
	// Callers that miss together share one parse and one Set.
	val, err, _ := c.group.Do(key, func() (any, error) {
		start := time.Now()
		cond, err := c.parser.Parse(q)
		if err != nil {
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.ParseDuration.Observe(time.Since(start).Seconds())
		}
		c.set(ctx, key, cond)
		return cond, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(query.Condition), false, nil
}

func (c *ConditionCache) get(ctx context.Context, key string) (query.Condition, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	cond, err := query.Decode(data)
	if err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return cond, true
}

func (c *ConditionCache) set(ctx context.Context, key string, cond query.Condition) {
	data, err := json.Marshal(query.JSONCondition{Condition: cond})
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate deletes every cached condition and returns how many keys went.
func (c *ConditionCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

// Size counts the cached conditions.
func (c *ConditionCache) Size(ctx context.Context) (int64, error) {
	var n int64
	err := c.breaker.Execute(func() error {
		var err error
		n, err = c.store.CountByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting cache keys: %w", err)
	}
	return n, nil
}

func (c *ConditionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the state of the Redis circuit breaker.
func (c *ConditionCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// Key returns the Redis key for q. Results depend on the parser options, so
// they are part of the key.
func (c *ConditionCache) Key(q string) string {
	hash := sha256.Sum256([]byte(c.parser.Options().Fingerprint() + "\x00" + q))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *ConditionCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ConditionCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
