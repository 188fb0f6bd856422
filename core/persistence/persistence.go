// Package persistence executes compiled document operations against a
// table store. It owns the prepared-statement cache, the batch cursor,
// table resolution and the per-collection document API.
package persistence

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Persistence is the entry point of the document API. It resolves tables on
// first use and hands out one Collection per table.
type Persistence struct {
	store    Store
	opts     Options
	executor *Executor
	resolver *TableResolver
	catalog  SchemaCatalog
	metrics  *Metrics
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// PersistenceOption customizes NewPersistence.
type PersistenceOption func(*Persistence)

// WithCatalog supplies field-type catalogs for exclusion projections and
// per-collection key overrides.
func WithCatalog(catalog SchemaCatalog) PersistenceOption {
	return func(p *Persistence) {
		p.catalog = catalog
	}
}

// WithMetrics records cache, batch and latency metrics.
func WithMetrics(metrics *Metrics) PersistenceOption {
	return func(p *Persistence) {
		p.metrics = metrics
	}
}

// NewPersistence creates the document API over store.
func NewPersistence(store Store, opts Options, logger *zap.Logger, options ...PersistenceOption) (*Persistence, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Persistence{
		opts:        opts,
		logger:      logger,
		collections: make(map[string]*Collection),
	}
	for _, option := range options {
		option(p)
	}

	p.store = NewRateLimitedStore(store, opts.RateLimit)
	cache := NewStatementCache(opts.StatementCacheSize, opts.StatementCacheTTL, p.metrics, logger)
	p.executor = NewExecutor(p.store, cache, p.metrics, logger)
	p.resolver = NewTableResolver(p.executor, opts, p.catalog, logger)

	logger.Debug("Persistence initialized",
		zap.Int("statementCacheSize", opts.StatementCacheSize),
		zap.Duration("statementCacheTTL", opts.StatementCacheTTL),
		zap.Int("maxResults", opts.MaxResults),
		zap.Float64("rateLimit", opts.RateLimit.RequestsPerSecond),
	)
	return p, nil
}

// Collection returns the collection for the named table, creating the
// table on first use.
func (p *Persistence) Collection(ctx context.Context, name string) (*Collection, error) {
	p.mu.Lock()
	if c, ok := p.collections[name]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	table, err := p.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.collections[name]; ok {
		return c, nil
	}
	c, err := NewCollection(table, p.executor, p.opts, p.logger)
	if err != nil {
		return nil, err
	}
	p.collections[name] = c
	return c, nil
}

// Executor returns the executor shared by every collection.
func (p *Persistence) Executor() *Executor {
	return p.executor
}

// Close forgets every collection and purges the statement cache.
func (p *Persistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name := range p.collections {
		p.resolver.Forget(name)
	}
	clear(p.collections)
	p.executor.Cache().Purge()
	return nil
}
