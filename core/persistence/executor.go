package persistence

import (
	"context"
	"time"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"go.uber.org/zap"
)

// Executor runs compiled statements and row operations against a Store. It
// owns the prepared-statement cache shared by every table.
type Executor struct {
	store   Store
	cache   *StatementCache
	metrics *Metrics
	logger  *zap.Logger
}

// NewExecutor creates an executor over store. A nil cache gets a default
// sized one.
func NewExecutor(store Store, cache *StatementCache, metrics *Metrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		defaults := DefaultOptions()
		cache = NewStatementCache(defaults.StatementCacheSize, defaults.StatementCacheTTL, metrics, logger)
	}
	return &Executor{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Cache returns the executor's prepared-statement cache.
func (e *Executor) Cache() *StatementCache {
	return e.cache
}

// Query returns a lazy cursor over the rows stmt selects. Nothing is sent to
// the store until the cursor is first pulled.
func (e *Executor) Query(table *Table, stmt *query.Statement, opts ExecOptions) *BatchCursor {
	return newBatchCursor(e, table, stmt, opts)
}

// Exec runs stmt and drains every batch. It is the write path for UPDATE,
// DELETE and aggregate statements whose result fits in memory.
func (e *Executor) Exec(ctx context.Context, table *Table, stmt *query.Statement) ([]map[string]any, error) {
	source, err := e.open(ctx, table, stmt, table.Exec)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	var rows []map[string]any
	for {
		batch, done, err := source.Next(ctx)
		if err != nil {
			return nil, e.executionFailed("fetch", table.Name, err)
		}
		e.metrics.batch(len(batch))
		rows = append(rows, batch...)
		if done {
			return rows, nil
		}
	}
}

// open resolves the prepared statement and starts execution.
func (e *Executor) open(ctx context.Context, table *Table, stmt *query.Statement, opts ExecOptions) (BatchSource, error) {
	ps, err := e.cache.Prepare(ctx, e.store, stmt.Text)
	if err != nil {
		e.logger.Error("Failed to prepare statement", zap.String("table", table.Name), zap.String("statement", stmt.Text), zap.Error(err))
		return nil, err
	}
	bindings := stmt.Bindings.Values()
	e.logger.Debug("Executing statement",
		zap.String("table", table.Name),
		zap.String("statement", stmt.Text),
		zap.Int("bindings", len(bindings)),
	)
	source, err := e.store.Execute(ctx, ps, bindings, opts)
	if err != nil {
		return nil, e.executionFailed("execute", table.Name, err)
	}
	return source, nil
}

// executionFailed clears the statement cache so a retry re-prepares against
// the table's current shape, then wraps err.
func (e *Executor) executionFailed(op, table string, err error) error {
	e.metrics.storeError(op)
	e.cache.Purge()
	e.logger.Error("Statement execution failed", zap.String("op", op), zap.String("table", table), zap.Error(err))
	return storeError(op, table, err)
}

// Put writes a row, reporting whether the precondition held.
func (e *Executor) Put(ctx context.Context, table string, row schema.Document, opt PutOption) (bool, error) {
	ok, err := e.store.PutRow(ctx, table, row, opt)
	if err != nil {
		return false, e.rowFailed("put", table, err)
	}
	e.logger.Debug("Put row", zap.String("table", table), zap.Stringer("option", opt), zap.Bool("written", ok))
	return ok, nil
}

// Get reads a row by primary key.
func (e *Executor) Get(ctx context.Context, table string, key schema.Document) (schema.Document, bool, error) {
	row, ok, err := e.store.GetRow(ctx, table, key)
	if err != nil {
		return nil, false, e.rowFailed("get", table, err)
	}
	return row, ok, nil
}

// Delete removes a row by primary key.
func (e *Executor) Delete(ctx context.Context, table string, key schema.Document) (bool, error) {
	ok, err := e.store.DeleteRow(ctx, table, key)
	if err != nil {
		return false, e.rowFailed("delete", table, err)
	}
	return ok, nil
}

func (e *Executor) rowFailed(op, table string, err error) error {
	e.metrics.storeError(op)
	e.logger.Error("Row operation failed", zap.String("op", op), zap.String("table", table), zap.Error(err))
	return storeError(op, table, err)
}

// RunDDL submits text and waits for it to complete. A positive timeout
// bounds the wait.
func (e *Executor) RunDDL(ctx context.Context, text string, timeout time.Duration) error {
	e.logger.Debug("Running DDL", zap.String("statement", text))
	handle, err := e.store.RunDDL(ctx, text)
	if err != nil {
		e.metrics.storeError("ddl")
		return storeError("ddl", "", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := handle.Wait(ctx); err != nil {
		e.metrics.storeError("ddl")
		return storeError("ddl", "", err)
	}
	return nil
}

// ListIndexes returns the secondary indexes of table.
func (e *Executor) ListIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	indexes, err := e.store.ListIndexes(ctx, table)
	if err != nil {
		return nil, e.rowFailed("listIndexes", table, err)
	}
	return indexes, nil
}
