package persistence

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// StatementCache maps statement text to prepared handles. It is bounded,
// entries expire after a TTL and the least recently used entry is evicted
// on overflow. It is safe for concurrent use, including Purge.
type StatementCache struct {
	lru     *expirable.LRU[string, PreparedStatement]
	metrics *Metrics
	logger  *zap.Logger
}

// NewStatementCache creates a cache holding at most size handles. A zero
// ttl disables expiry.
func NewStatementCache(size int, ttl time.Duration, metrics *Metrics, logger *zap.Logger) *StatementCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = DefaultOptions().StatementCacheSize
	}
	return &StatementCache{
		lru:     expirable.NewLRU[string, PreparedStatement](size, nil, ttl),
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the cached handle for text.
func (c *StatementCache) Get(text string) (PreparedStatement, bool) {
	ps, ok := c.lru.Get(text)
	c.metrics.cacheLookup(ok)
	return ps, ok
}

// Add caches ps under text.
func (c *StatementCache) Add(text string, ps PreparedStatement) {
	c.lru.Add(text, ps)
}

// Prepare returns the cached handle for text, preparing and caching it
// through store on a miss.
func (c *StatementCache) Prepare(ctx context.Context, store Store, text string) (PreparedStatement, error) {
	if ps, ok := c.Get(text); ok {
		c.logger.Debug("Statement cache hit", zap.String("statement", text))
		return ps, nil
	}
	c.logger.Debug("Preparing statement", zap.String("statement", text))
	ps, err := store.Prepare(ctx, text)
	if err != nil {
		c.metrics.storeError("prepare")
		return nil, storeError("prepare", "", err)
	}
	c.metrics.prepared()
	c.Add(text, ps)
	return ps, nil
}

// Purge drops every cached handle.
func (c *StatementCache) Purge() {
	c.lru.Purge()
	c.metrics.purged()
	c.logger.Debug("Statement cache purged")
}

// Len returns the number of cached handles.
func (c *StatementCache) Len() int {
	return c.lru.Len()
}
