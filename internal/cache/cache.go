// Package cache memoizes resource definition lookups in front of the
// store. Entries are immutable values swapped whole under the lock, so
// readers never observe a partially updated definition.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resource"
)

// DefaultTTL is the definition lifetime used when none is configured.
const DefaultTTL = 5 * time.Minute

// Loader fetches a definition on a cache miss.
type Loader func(ctx context.Context, name string) (*resource.Definition, error)

// entry is an immutable cached definition.
type entry struct {
	def       resource.Definition
	expiresAt time.Time
}

// DefinitionCache is a read-through TTL cache over a Loader. Concurrent
// misses for the same key collapse into a single load.
type DefinitionCache struct {
	loader  Loader
	ttl     time.Duration
	logger  observability.Logger
	metrics *Metrics

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64

	group    singleflight.Group
	stop     chan struct{}
	stopOnce sync.Once

	hits   atomic.Int64
	misses atomic.Int64
}

// Option is a functional option for the cache.
type Option func(*DefinitionCache)

// WithTTL sets the entry lifetime. Non-positive keeps DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *DefinitionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *DefinitionCache) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(c *DefinitionCache) {
		c.metrics = metrics
	}
}

// New creates a definition cache over the loader and starts its
// expiry sweeper.
func New(loader Loader, opts ...Option) *DefinitionCache {
	c := &DefinitionCache{
		loader:  loader,
		ttl:     DefaultTTL,
		logger:  observability.NopLogger(),
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
		stop:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("butterfly")
	}

	go c.sweep()

	return c
}

// Get returns the definition for a logical name, loading it on a miss.
// The returned definition is a deep copy; callers may mutate it
// freely, including through its policy pointers.
func (c *DefinitionCache) Get(ctx context.Context, name string) (*resource.Definition, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	gen := c.gens[name]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		c.hits.Add(1)
		c.metrics.RecordHit()
		def := e.def
		return def.Clone(), nil
	}

	c.misses.Add(1)
	c.metrics.RecordMiss()

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		// The load is shared by every concurrent waiter, so it must
		// not die with the first caller's context.
		def, err := c.loader(context.WithoutCancel(ctx), name)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// An invalidation that raced the load wins; storing here
		// would resurrect the definition it dropped.
		if c.gens[name] == gen {
			c.entries[name] = entry{def: *def.Clone(), expiresAt: time.Now().Add(c.ttl)}
			c.metrics.SetEntryCount(len(c.entries))
		}
		c.mu.Unlock()

		return def, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*resource.Definition).Clone(), nil
}

// Invalidate drops the entry for a logical name and abandons any
// in-flight load for it. It must complete before a registration is
// acknowledged, so the next read observes the new definition.
func (c *DefinitionCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.gens[name]++
	c.metrics.SetEntryCount(len(c.entries))
	c.mu.Unlock()

	c.group.Forget(name)

	c.logger.Debug("definition invalidated", observability.String("name", name))
}

// Stats returns the hit and miss counts.
func (c *DefinitionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the expiry sweeper.
func (c *DefinitionCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// sweep removes expired entries so the map does not grow unbounded
// between reads.
func (c *DefinitionCache) sweep() {
	interval := c.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for name, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, name)
				}
			}
			c.metrics.SetEntryCount(len(c.entries))
			c.mu.Unlock()
		}
	}
}
