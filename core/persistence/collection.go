package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/asaidimu/go-docstore/utils"
	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result columns the store reports write counts in.
const (
	updatedRowsColumn = "NumRowsUpdated"
	deletedRowsColumn = "numRowsDeleted"
)

// CollectionBase implements the document operations of one resolved table.
// Collection wraps it with event emission.
type CollectionBase struct {
	table         *Table
	executor      *Executor
	builder       query.StatementGenerator
	validator     *schema.Validator // nil without a catalog
	opts          Options
	logger        *zap.Logger
	bus           *events.TypedEventBus[PersistenceEvent]
	subscriptions map[string]*SubscriptionInfo // To store unsubscribe functions
	subMu         sync.RWMutex                 // Mutex to protect subscriptions map
}

// NewCollection creates the event-emitting collection for a resolved table.
func NewCollection(table *Table, executor *Executor, opts Options, logger *zap.Logger) (*Collection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	base := &CollectionBase{
		table:         table,
		executor:      executor,
		builder:       query.NewStatementBuilder(),
		opts:          opts,
		logger:        logger.With(zap.String("collection", table.Name)),
		bus:           bus,
		subscriptions: map[string]*SubscriptionInfo{},
	}
	if table.Catalog != nil && len(table.Catalog.Fields) > 0 {
		base.validator = schema.NewValidator(table.Catalog)
	}
	return NewEventEmittingCollection(base), nil
}

// Name returns the table name.
func (ci *CollectionBase) Name() string {
	return ci.table.Name
}

// Table returns the resolved table the collection operates on.
func (ci *CollectionBase) Table() *Table {
	return ci.table
}

// FindOne returns the first matching document, or nil when nothing matches.
// A filter that is a plain identity equality on a simple key is served by a
// single row read.
func (ci *CollectionBase) FindOne(ctx context.Context, filter any, opts *query.FindOptions) (schema.Document, error) {
	if id, ok := ci.identityLookup(filter, opts); ok {
		key, err := ci.table.Values.KeyFromIdentity(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", query.ErrInvalidFilter, err)
		}
		row, found, err := ci.executor.Get(ctx, ci.table.Name, key)
		if err != nil || !found {
			return nil, err
		}
		return ci.table.Values.FromRow(row), nil
	}

	one := query.FindOptions{}
	if opts != nil {
		one = *opts
	}
	one.Limit = 1
	cursor, err := ci.Find(ctx, filter, &one)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()
	return cursor.Next(ctx)
}

// Find returns a lazy cursor over the matching documents.
func (ci *CollectionBase) Find(ctx context.Context, filter any, opts *query.FindOptions) (*BatchCursor, error) {
	find := query.FindOptions{}
	if opts != nil {
		find = *opts
	}
	stmt, err := ci.builder.Select(ci.table.Target(), filter, find)
	if err != nil {
		return nil, err
	}

	exec := ci.table.Exec
	if find.MaxResults > 0 {
		exec.MaxResults = find.MaxResults
	}
	if find.BatchSize > 0 {
		exec.BatchSize = find.BatchSize
	}
	return ci.executor.Query(ci.table, stmt, exec), nil
}

// InsertOne writes a new document. A document without an identity gets a
// fresh ObjectID; an identity that already exists fails with
// ErrDuplicateKey.
func (ci *CollectionBase) InsertOne(ctx context.Context, doc any) (*InsertOneResult, error) {
	id, err := ci.insert(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &InsertOneResult{Acknowledged: true, InsertedID: id}, nil
}

// InsertMany inserts docs in order and stops at the first failure. The
// result lists the identities inserted before it.
func (ci *CollectionBase) InsertMany(ctx context.Context, docs []any) (*InsertManyResult, error) {
	result := &InsertManyResult{Acknowledged: true, InsertedIDs: make([]any, 0, len(docs))}
	for i, doc := range docs {
		id, err := ci.insert(ctx, doc)
		if err != nil {
			return result, fmt.Errorf("insert %d of %d: %w", i+1, len(docs), err)
		}
		result.InsertedIDs = append(result.InsertedIDs, id)
	}
	return result, nil
}

func (ci *CollectionBase) insert(ctx context.Context, doc any) (any, error) {
	if utils.IsStruct(doc) {
		converted, err := utils.ToDocument(doc)
		if err != nil {
			return nil, err
		}
		doc = converted
	}
	entries, ok := schema.Entries(doc)
	if !ok {
		return nil, fmt.Errorf("cannot insert %T: not a document", doc)
	}
	d := make(schema.D, 0, len(entries)+1)
	var id any
	for _, e := range entries {
		if e.Key == schema.IdentityField {
			id = e.Value
		}
		d = append(d, e)
	}
	if id == nil && !ci.table.Keys.IsComposite {
		id = schema.NewObjectID()
		d = append(schema.D{{Key: schema.IdentityField, Value: id}}, d...)
	}
	if err := ci.validate(d); err != nil {
		return nil, err
	}

	row, err := ci.table.Values.ToRow(d)
	if err != nil {
		return nil, err
	}
	if id == nil {
		id = ci.identityOf(row)
	}

	written, err := ci.executor.Put(ctx, ci.table.Name, row, PutIfAbsent)
	if err != nil {
		return nil, err
	}
	if !written {
		return nil, fmt.Errorf("%w: %s %v", ErrDuplicateKey, ci.table.Name, id)
	}
	return id, nil
}

// validate checks a full document against the table's catalog, if any.
func (ci *CollectionBase) validate(doc schema.D) error {
	if ci.validator == nil {
		return nil
	}
	if err := ci.validator.Check(doc.Map()); err != nil {
		ci.logger.Debug("Document rejected by catalog", zap.Error(err))
		return err
	}
	return nil
}

// UpdateOne applies update to the first matching document.
func (ci *CollectionBase) UpdateOne(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error) {
	return ci.update(ctx, filter, update, opts, 1)
}

// UpdateMany applies update to every matching document.
func (ci *CollectionBase) UpdateMany(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error) {
	return ci.update(ctx, filter, update, opts, 0)
}

// update selects the matching identities, then runs one keyed UPDATE per
// identity because the store only updates rows addressed by a full key.
func (ci *CollectionBase) update(ctx context.Context, filter any, update any, opts *query.UpdateOptions, limit int64) (*UpdateResult, error) {
	if _, err := query.NewUpdateCompiler(ci.table.Keys, query.NewBindingTable(), ci.table.Values).Compile(update); err != nil {
		return nil, err
	}

	ids, err := ci.matchingIdentities(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if opts != nil && opts.Upsert {
			return ci.upsert(ctx, filter, update)
		}
		return &UpdateResult{Acknowledged: true}, nil
	}

	result := &UpdateResult{Acknowledged: true, MatchedCount: int64(len(ids))}
	for _, id := range ids {
		stmt, err := ci.builder.Update(ci.table.Target(), schema.D{{Key: schema.IdentityField, Value: id}}, update)
		if err != nil {
			return nil, err
		}
		rows, err := ci.executor.Exec(ctx, ci.table, stmt)
		if err != nil {
			return result, err
		}
		result.ModifiedCount += affectedRows(rows, updatedRowsColumn)
	}
	return result, nil
}

// upsert inserts the document implied by the filter's equalities and the
// update's $set values.
func (ci *CollectionBase) upsert(ctx context.Context, filter any, update any) (*UpdateResult, error) {
	seed := seedDocument(filter)
	if entries, ok := schema.Entries(update); ok {
		for _, e := range entries {
			if e.Key != query.OpSet {
				continue
			}
			fields, _ := schema.Entries(e.Value)
			for _, f := range fields {
				setPath(seed, f.Key, f.Value)
			}
		}
	}
	id, err := ci.insert(ctx, seed)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Acknowledged: true, UpsertedID: id}, nil
}

// ReplaceOne swaps the first matching document for replacement, keeping the
// matched identity.
func (ci *CollectionBase) ReplaceOne(ctx context.Context, filter any, replacement any, opts *query.UpdateOptions) (*UpdateResult, error) {
	entries, ok := schema.Entries(replacement)
	if !ok {
		return nil, fmt.Errorf("%w: replacement must be a document, got %T", query.ErrInvalidUpdate, replacement)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Key, "$") {
			return nil, fmt.Errorf("%w: replacement must not contain operator %s", query.ErrInvalidUpdate, e.Key)
		}
	}
	if err := ci.validate(schema.D(entries)); err != nil {
		return nil, err
	}

	ids, err := ci.matchingIdentities(ctx, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if opts == nil || !opts.Upsert {
			return &UpdateResult{Acknowledged: true}, nil
		}
		doc := seedDocument(filter)
		for _, e := range entries {
			doc[e.Key] = e.Value
		}
		id, err := ci.insert(ctx, doc)
		if err != nil {
			return nil, err
		}
		return &UpdateResult{Acknowledged: true, UpsertedID: id}, nil
	}

	doc := make(schema.D, 0, len(entries)+1)
	doc = append(doc, schema.E{Key: schema.IdentityField, Value: ids[0]})
	for _, e := range entries {
		if e.Key != schema.IdentityField {
			doc = append(doc, e)
		}
	}
	row, err := ci.table.Values.ToRow(doc)
	if err != nil {
		return nil, err
	}
	written, err := ci.executor.Put(ctx, ci.table.Name, row, PutIfPresent)
	if err != nil {
		return nil, err
	}
	result := &UpdateResult{Acknowledged: true, MatchedCount: 1}
	if written {
		result.ModifiedCount = 1
	}
	return result, nil
}

// DeleteOne removes the first matching document.
func (ci *CollectionBase) DeleteOne(ctx context.Context, filter any) (*DeleteResult, error) {
	ids, err := ci.matchingIdentities(ctx, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &DeleteResult{Acknowledged: true}, nil
	}
	key, err := ci.table.Values.KeyFromIdentity(ids[0])
	if err != nil {
		return nil, err
	}
	deleted, err := ci.executor.Delete(ctx, ci.table.Name, key)
	if err != nil {
		return nil, err
	}
	result := &DeleteResult{Acknowledged: true}
	if deleted {
		result.DeletedCount = 1
	}
	return result, nil
}

// DeleteMany removes every matching document with a single statement.
func (ci *CollectionBase) DeleteMany(ctx context.Context, filter any) (*DeleteResult, error) {
	stmt, err := ci.builder.Delete(ci.table.Target(), filter)
	if err != nil {
		return nil, err
	}
	rows, err := ci.executor.Exec(ctx, ci.table, stmt)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Acknowledged: true, DeletedCount: affectedRows(rows, deletedRowsColumn)}, nil
}

// Count returns the number of matching documents.
func (ci *CollectionBase) Count(ctx context.Context, filter any) (int64, error) {
	stmt, err := ci.builder.Count(ci.table.Target(), filter)
	if err != nil {
		return 0, err
	}
	rows, err := ci.executor.Exec(ctx, ci.table, stmt)
	if err != nil {
		return 0, err
	}
	return affectedRows(rows, query.CountColumn), nil
}

// CreateIndex creates a secondary index over keys and returns its name.
func (ci *CollectionBase) CreateIndex(ctx context.Context, keys any, opts *query.IndexOptions) (string, error) {
	fields, err := query.ParseIndexKeys(keys)
	if err != nil {
		return "", err
	}
	var name string
	if opts != nil {
		name = opts.Name
	}
	name = query.IndexName(name, fields)
	text, err := query.CreateIndexSQL(ci.table.Name, name, fields)
	if err != nil {
		return "", err
	}
	if err := ci.executor.RunDDL(ctx, text, ci.opts.DDLTimeout); err != nil {
		return "", err
	}
	ci.logger.Info("Created index", zap.String("index", name))
	return name, nil
}

// DropIndex removes the named index if it exists.
func (ci *CollectionBase) DropIndex(ctx context.Context, name string) error {
	text, err := query.DropIndexSQL(ci.table.Name, name)
	if err != nil {
		return err
	}
	if err := ci.executor.RunDDL(ctx, text, ci.opts.DDLTimeout); err != nil {
		return err
	}
	ci.logger.Info("Dropped index", zap.String("index", name))
	return nil
}

// ListIndexes returns the secondary indexes of the table.
func (ci *CollectionBase) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	return ci.executor.ListIndexes(ctx, ci.table.Name)
}

// RegisterSubscription registers a collection-scoped subscription.
func (ci *CollectionBase) RegisterSubscription(options RegisterSubscriptionOptions) string {
	ci.subMu.Lock()
	defer ci.subMu.Unlock()
	unsubscribe := ci.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New()
	callbackID := id.String()

	ci.subscriptions[callbackID] = &SubscriptionInfo{
		ID:          callbackID,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}
	return callbackID
}

// UnregisterSubscription unregisters a collection-scoped subscription.
func (ci *CollectionBase) UnregisterSubscription(id string) {
	ci.subMu.Lock()
	defer ci.subMu.Unlock()
	info := ci.subscriptions[id]
	if info != nil {
		info.Unsubscribe()
		delete(ci.subscriptions, id)
	}
}

// Subscriptions returns all registered collection-scoped subscriptions.
func (ci *CollectionBase) Subscriptions() []SubscriptionInfo {
	ci.subMu.RLock()
	defer ci.subMu.RUnlock()
	out := make([]SubscriptionInfo, 0, len(ci.subscriptions))
	for _, info := range ci.subscriptions {
		out = append(out, *info)
	}
	return out
}

// identityLookup reports whether filter can be answered by a row read: a
// lone scalar identity on a simple key, without projection or offset.
func (ci *CollectionBase) identityLookup(filter any, opts *query.FindOptions) (any, bool) {
	if ci.table.Keys.IsComposite {
		return nil, false
	}
	if opts != nil && (opts.Projection != nil || opts.Skip > 0) {
		return nil, false
	}
	entries, ok := schema.Entries(filter)
	if !ok || len(entries) != 1 || entries[0].Key != schema.IdentityField {
		return nil, false
	}
	switch v := entries[0].Value.(type) {
	case nil, []any:
		return nil, false
	default:
		if schema.IsDocument(v) {
			return nil, false
		}
		return v, true
	}
}

// matchingIdentities returns the identities of up to limit matching
// documents; zero means all of them.
func (ci *CollectionBase) matchingIdentities(ctx context.Context, filter any, limit int64) ([]any, error) {
	stmt, err := ci.builder.Select(ci.table.Target(), filter, query.FindOptions{
		Projection: schema.D{{Key: schema.IdentityField, Value: 1}},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	docs, err := ci.executor.Query(ci.table, stmt, ci.table.Exec).ToArray(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		if id, ok := doc[schema.IdentityField]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// identityOf rebuilds the identity of a row written without one.
func (ci *CollectionBase) identityOf(row schema.Document) any {
	id := schema.Document{}
	for _, col := range ci.table.Keys.KeyColumns() {
		id[col] = row[col]
	}
	return id
}

// seedDocument collects the plain equalities of a filter, the fields an
// upserted document starts from.
func seedDocument(filter any) schema.Document {
	seed := schema.Document{}
	entries, _ := schema.Entries(filter)
	for _, e := range entries {
		if strings.HasPrefix(e.Key, "$") || isOperatorDocument(e.Value) {
			continue
		}
		if _, isArray := e.Value.([]any); isArray {
			continue
		}
		setPath(seed, e.Key, e.Value)
	}
	return seed
}

func isOperatorDocument(v any) bool {
	entries, ok := schema.Entries(v)
	return ok && len(entries) > 0 && strings.HasPrefix(entries[0].Key, "$")
}

// setPath assigns value at a dotted path, creating intermediate documents.
func setPath(doc schema.Document, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		switch next := current[part].(type) {
		case schema.Document:
			current = next
		case map[string]any:
			current = next
		default:
			created := schema.Document{}
			current[part] = created
			current = created
		}
	}
	current[parts[len(parts)-1]] = value
}

// affectedRows reads a count the store reports in the first result row.
func affectedRows(rows []map[string]any, column string) int64 {
	if len(rows) == 0 {
		return 0
	}
	switch n := rows[0][column].(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
