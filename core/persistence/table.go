package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Table is a resolved, ready-to-use table. It is immutable once returned by
// the resolver.
type Table struct {
	Name    string
	Keys    *schema.KeySchema
	Catalog *schema.SchemaDefinition
	Exec    ExecOptions
	Values  *schema.RowMarshaller
}

// Target returns the view of the table the statement builder needs.
func (t *Table) Target() query.Table {
	return query.Table{
		Name:    t.Name,
		Keys:    t.Keys,
		Catalog: t.Catalog,
		Values:  t.Values,
	}
}

// TableResolver resolves table metadata once per name, creating the table
// on first use when the store does not know it. Concurrent first callers
// for the same name share a single resolution.
type TableResolver struct {
	exec    *Executor
	opts    Options
	catalog SchemaCatalog
	logger  *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string]*Table
}

// NewTableResolver creates a resolver. catalog may be nil.
func NewTableResolver(exec *Executor, opts Options, catalog SchemaCatalog, logger *zap.Logger) *TableResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableResolver{
		exec:    exec,
		opts:    opts,
		catalog: catalog,
		logger:  logger,
		memo:    make(map[string]*Table),
	}
}

// Resolve returns the table named name, describing or creating it on first
// use. Failed resolutions are not remembered.
func (r *TableResolver) Resolve(ctx context.Context, name string) (*Table, error) {
	if t := r.cached(name); t != nil {
		return t, nil
	}
	if err := query.ValidateTableName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTableUnavailable, err)
	}

	v, err, shared := r.group.Do(name, func() (any, error) {
		if t := r.cached(name); t != nil {
			return t, nil
		}
		t, err := r.resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.memo[name] = t
		r.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("Shared table resolution", zap.String("table", name))
	}
	return v.(*Table), nil
}

// Forget drops the memoized metadata of name.
func (r *TableResolver) Forget(name string) {
	r.mu.Lock()
	delete(r.memo, name)
	r.mu.Unlock()
}

func (r *TableResolver) cached(name string) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memo[name]
}

func (r *TableResolver) resolve(ctx context.Context, name string) (*Table, error) {
	catalog, err := r.lookupCatalog(ctx, name)
	if err != nil {
		return nil, err
	}

	keys, err := r.describe(ctx, name)
	if errors.Is(err, ErrTableNotFound) {
		keys, err = r.create(ctx, name, catalog)
	}
	if err != nil {
		return nil, err
	}

	return &Table{
		Name:    name,
		Keys:    keys,
		Catalog: catalog,
		Exec:    r.opts.execOptions(),
		Values:  schema.NewRowMarshaller(keys, r.opts.marshalOptions()),
	}, nil
}

func (r *TableResolver) describe(ctx context.Context, name string) (*schema.KeySchema, error) {
	info, err := r.exec.store.DescribeTable(ctx, name)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, err
		}
		r.logger.Error("Failed to describe table", zap.String("table", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrTableUnavailable, name, storeError("describe", name, err))
	}
	if info == nil || info.Keys == nil {
		return r.opts.KeysFor(name), nil
	}
	return info.Keys, nil
}

func (r *TableResolver) create(ctx context.Context, name string, catalog *schema.SchemaDefinition) (*schema.KeySchema, error) {
	keys := r.opts.KeysFor(name)
	if catalog != nil && catalog.Key != nil {
		keys = catalog.Key
	}
	text, err := query.CreateTableSQL(name, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTableUnavailable, name, err)
	}

	start := time.Now()
	r.logger.Info("Creating table", zap.String("table", name), zap.Strings("key", keys.KeyColumns()))
	err = r.exec.RunDDL(ctx, text, r.opts.DDLTimeout)
	switch {
	case err == nil:
		r.logger.Info("Created table", zap.String("table", name), zap.Duration("took", time.Since(start)))
		return keys, nil
	case errors.Is(err, ErrTableExists):
		r.logger.Debug("Table created concurrently, describing again", zap.String("table", name))
		return r.describe(ctx, name)
	default:
		r.logger.Error("Failed to create table", zap.String("table", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrTableUnavailable, name, err)
	}
}

func (r *TableResolver) lookupCatalog(ctx context.Context, name string) (*schema.SchemaDefinition, error) {
	if r.catalog == nil {
		return nil, nil
	}
	def, err := r.catalog.Schema(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: catalog lookup: %w", ErrTableUnavailable, name, err)
	}
	return def, nil
}
