package persistence

import (
	"context"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
)

// PersistenceEventType defines the possible event types for persistence operations.
type PersistenceEventType string

const (
	DocumentCreateStart    PersistenceEventType = "document:create:start"
	DocumentCreateSuccess  PersistenceEventType = "document:create:success"
	DocumentCreateFailed   PersistenceEventType = "document:create:failed"
	DocumentReadStart      PersistenceEventType = "document:read:start"
	DocumentReadSuccess    PersistenceEventType = "document:read:success"
	DocumentReadFailed     PersistenceEventType = "document:read:failed"
	DocumentUpdateStart    PersistenceEventType = "document:update:start"
	DocumentUpdateSuccess  PersistenceEventType = "document:update:success"
	DocumentUpdateFailed   PersistenceEventType = "document:update:failed"
	DocumentDeleteStart    PersistenceEventType = "document:delete:start"
	DocumentDeleteSuccess  PersistenceEventType = "document:delete:success"
	DocumentDeleteFailed   PersistenceEventType = "document:delete:failed"
	IndexCreateStart       PersistenceEventType = "index:create:start"
	IndexCreateSuccess     PersistenceEventType = "index:create:success"
	IndexCreateFailed      PersistenceEventType = "index:create:failed"
	IndexDropStart         PersistenceEventType = "index:drop:start"
	IndexDropSuccess       PersistenceEventType = "index:drop:success"
	IndexDropFailed        PersistenceEventType = "index:drop:failed"
	SubscriptionRegister   PersistenceEventType = "subscription:register"
	SubscriptionUnregister PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent represents events emitted during persistence operations.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`                 // The type of event (e.g., 'document:create:start').
	Timestamp  int64                `json:"timestamp"`            // Timestamp when the event occurred (Unix milliseconds).
	Operation  string               `json:"operation"`            // The operation being performed (e.g., 'insertOne').
	Collection *string              `json:"collection,omitempty"` // Name of the collection affected.
	Input      any                  `json:"input,omitempty"`      // Data passed to the operation (if applicable).
	Output     any                  `json:"output,omitempty"`     // Data returned by the operation (if applicable).
	Error      *string              `json:"error,omitempty"`      // Error message if the operation failed.
	Query      any                  `json:"query,omitempty"`      // Filter used in the operation (if applicable).
	Duration   *int64               `json:"duration,omitempty"`   // Duration of the operation in milliseconds.
	Context    map[string]any       `json:"context,omitempty"`    // Additional context specific to the operation.
}

type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes a subscription configuration.
type SubscriptionInfo struct {
	ID          string               `json:"id"`
	Event       PersistenceEventType `json:"event"`                 // The event subscribed to.
	Label       *string              `json:"label,omitempty"`       // Optional short identifier.
	Description *string              `json:"description,omitempty"` // Optional description.
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions configures a new subscription.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType
	Label       *string
	Description *string
	Callback    EventCallbackFunction
}

// InsertOneResult reports the identity of an inserted document.
type InsertOneResult struct {
	Acknowledged bool `json:"acknowledged"`
	InsertedID   any  `json:"insertedId"`
}

// InsertManyResult reports the identities inserted, in input order.
type InsertManyResult struct {
	Acknowledged bool  `json:"acknowledged"`
	InsertedIDs  []any `json:"insertedIds"`
}

// UpdateResult reports the outcome of an update or replace.
type UpdateResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedID    any   `json:"upsertedId,omitempty"`
}

// DeleteResult reports the number of deleted documents.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// DocumentCollection is the document-operation surface of one table.
type DocumentCollection interface {
	Name() string
	FindOne(ctx context.Context, filter any, opts *query.FindOptions) (schema.Document, error)
	Find(ctx context.Context, filter any, opts *query.FindOptions) (*BatchCursor, error)
	InsertOne(ctx context.Context, doc any) (*InsertOneResult, error)
	InsertMany(ctx context.Context, docs []any) (*InsertManyResult, error)
	UpdateOne(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error)
	UpdateMany(ctx context.Context, filter any, update any, opts *query.UpdateOptions) (*UpdateResult, error)
	ReplaceOne(ctx context.Context, filter any, replacement any, opts *query.UpdateOptions) (*UpdateResult, error)
	DeleteOne(ctx context.Context, filter any) (*DeleteResult, error)
	DeleteMany(ctx context.Context, filter any) (*DeleteResult, error)
	Count(ctx context.Context, filter any) (int64, error)
	CreateIndex(ctx context.Context, keys any, opts *query.IndexOptions) (string, error)
	DropIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context) ([]IndexInfo, error)

	RegisterSubscription(options RegisterSubscriptionOptions) string
	UnregisterSubscription(id string)
	Subscriptions() []SubscriptionInfo
}
