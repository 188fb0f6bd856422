package persistence

import (
	"context"
	"time"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/asaidimu/go-events"
)

// Collection wraps a CollectionBase and adds event emission
type Collection struct {
	collection *CollectionBase
	bus        *events.TypedEventBus[PersistenceEvent]
	name       string
}

var _ DocumentCollection = (*Collection)(nil)

// NewEventEmittingCollection creates a new event-emitting collection wrapper
func NewEventEmittingCollection(collection *CollectionBase) *Collection {
	return &Collection{
		collection: collection,
		bus:        collection.bus,
		name:       collection.table.Name,
	}
}

// emitEvent is a helper method to emit events
func (e *Collection) emitEvent(event PersistenceEvent) {
	if e.bus != nil {
		e.bus.Emit(string(event.Type), event)
	}
}

// operationEvent holds what every event of one operation shares.
type operationEvent struct {
	collection string
	operation  string
	input      any
	query      any
	started    time.Time
}

// at builds the event of type t. A zero start time leaves Duration unset.
func (o operationEvent) at(t PersistenceEventType, output any, err error) PersistenceEvent {
	event := PersistenceEvent{
		Type:       t,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  o.operation,
		Collection: &o.collection,
		Input:      o.input,
		Output:     output,
		Query:      o.query,
	}
	if !o.started.IsZero() {
		ms := time.Since(o.started).Milliseconds()
		event.Duration = &ms
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	return event
}

// withEventEmission wraps an operation with start, success, and failure events
func withEventEmission[T any](
	e *Collection,
	operation string,
	startEventType PersistenceEventType,
	successEventType PersistenceEventType,
	failedEventType PersistenceEventType,
	input any,
	queryParam any,
	fn func() (T, error),
) (T, error) {
	op := operationEvent{collection: e.name, operation: operation, input: input, query: queryParam, started: time.Now()}
	e.emitEvent(op.at(startEventType, nil, nil))

	result, err := fn()
	e.collection.executor.metrics.observe(operation, op.started, err)

	if err != nil {
		e.emitEvent(op.at(failedEventType, nil, err))
		return result, err
	}

	e.emitEvent(op.at(successEventType, result, nil))
	return result, nil
}

// Name returns the table name.
func (e *Collection) Name() string {
	return e.name
}

// Table returns the resolved table the collection operates on.
func (e *Collection) Table() *Table {
	return e.collection.table
}

// FindOne wraps the collection's FindOne method with event emission
func (e *Collection) FindOne(ctx context.Context, filter any, opts *query.FindOptions) (schema.Document, error) {
	return withEventEmission(e, "findOne", DocumentReadStart, DocumentReadSuccess, DocumentReadFailed, opts, filter,
		func() (schema.Document, error) {
			return e.collection.FindOne(ctx, filter, opts)
		})
}

// Find wraps the collection's Find method with event emission. Success
// means the statement compiled; rows are fetched as the cursor is pulled.
func (e *Collection) Find(ctx context.Context, filter any, opts *query.FindOptions) (*BatchCursor, error) {
	return withEventEmission(e, "find", DocumentReadStart, DocumentReadSuccess, DocumentReadFailed, opts, filter,
		func() (*BatchCursor, error) {
			return e.collection.Find(ctx, filter, opts)
		})
}

// InsertOne wraps the collection's InsertOne method with event emission
func (e *Collection) InsertOne(ctx context.Context, doc any) (*InsertOneResult, error) {
	return withEventEmission(e, "insertOne", DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed, doc, nil,
		func() (*InsertOneResult, error) {
			return e.collection.InsertOne(ctx, doc)
		})
}

// InsertMany wraps the collection's InsertMany method with event emission
func (e *Collection) InsertMany(ctx context.Context, docs []any) (*InsertManyResult, error) {
	return withEventEmission(e, "insertMany", DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed, docs, nil,
		func() (*InsertManyResult, error) {
			return e.collection.InsertMany(ctx, docs)
		})
}

// UpdateOne wraps the collection's UpdateOne method with event emission
func (e *Collection) UpdateOne(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error) {
	return withEventEmission(e, "updateOne", DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed, update, filter,
		func() (*UpdateResult, error) {
			return e.collection.UpdateOne(ctx, filter, update, opts)
		})
}

// UpdateMany wraps the collection's UpdateMany method with event emission
func (e *Collection) UpdateMany(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error) {
	return withEventEmission(e, "updateMany", DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed, update, filter,
		func() (*UpdateResult, error) {
			return e.collection.UpdateMany(ctx, filter, update, opts)
		})
}

// ReplaceOne wraps the collection's ReplaceOne method with event emission
func (e *Collection) ReplaceOne(ctx context.Context, filter any, replacement any, opts *query.UpdateOptions) (*UpdateResult, error) {
	return withEventEmission(e, "replaceOne", DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed, replacement, filter,
		func() (*UpdateResult, error) {
			return e.collection.ReplaceOne(ctx, filter, replacement, opts)
		})
}

// DeleteOne wraps the collection's DeleteOne method with event emission
func (e *Collection) DeleteOne(ctx context.Context, filter any) (*DeleteResult, error) {
	return withEventEmission(e, "deleteOne", DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed, nil, filter,
		func() (*DeleteResult, error) {
			return e.collection.DeleteOne(ctx, filter)
		})
}

// DeleteMany wraps the collection's DeleteMany method with event emission
func (e *Collection) DeleteMany(ctx context.Context, filter any) (*DeleteResult, error) {
	return withEventEmission(e, "deleteMany", DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed, nil, filter,
		func() (*DeleteResult, error) {
			return e.collection.DeleteMany(ctx, filter)
		})
}

// Count wraps the collection's Count method with event emission
func (e *Collection) Count(ctx context.Context, filter any) (int64, error) {
	return withEventEmission(e, "count", DocumentReadStart, DocumentReadSuccess, DocumentReadFailed, nil, filter,
		func() (int64, error) {
			return e.collection.Count(ctx, filter)
		})
}

// CreateIndex wraps the collection's CreateIndex method with event emission
func (e *Collection) CreateIndex(ctx context.Context, keys any, opts *query.IndexOptions) (string, error) {
	return withEventEmission(e, "createIndex", IndexCreateStart, IndexCreateSuccess, IndexCreateFailed, keys, nil,
		func() (string, error) {
			return e.collection.CreateIndex(ctx, keys, opts)
		})
}

// DropIndex wraps the collection's DropIndex method with event emission
func (e *Collection) DropIndex(ctx context.Context, name string) error {
	_, err := withEventEmission(e, "dropIndex", IndexDropStart, IndexDropSuccess, IndexDropFailed, name, nil,
		func() (struct{}, error) {
			return struct{}{}, e.collection.DropIndex(ctx, name)
		})
	return err
}

// ListIndexes forwards to the wrapped collection. Listing emits no events.
func (e *Collection) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	return e.collection.ListIndexes(ctx)
}

// RegisterSubscription registers a collection-scoped subscription.
func (e *Collection) RegisterSubscription(options RegisterSubscriptionOptions) string {
	id := e.collection.RegisterSubscription(options)
	e.emitEvent(operationEvent{collection: e.name, operation: "registerSubscription", input: options.Event}.at(SubscriptionRegister, id, nil))
	return id
}

// UnregisterSubscription unregisters a collection-scoped subscription.
func (e *Collection) UnregisterSubscription(id string) {
	e.collection.UnregisterSubscription(id)
	e.emitEvent(operationEvent{collection: e.name, operation: "unregisterSubscription", input: id}.at(SubscriptionUnregister, nil, nil))
}

// Subscriptions returns all registered collection-scoped subscriptions.
func (e *Collection) Subscriptions() []SubscriptionInfo {
	return e.collection.Subscriptions()
}
