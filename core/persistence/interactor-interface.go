package persistence

import (
	"context"

	"github.com/asaidimu/go-docstore/core/schema"
)

// PutOption selects the precondition of a row write.
type PutOption int

const (
	// PutAlways writes the row unconditionally.
	PutAlways PutOption = iota
	// PutIfAbsent writes only when no row with the same key exists.
	PutIfAbsent
	// PutIfPresent writes only when a row with the same key exists.
	PutIfPresent
)

func (o PutOption) String() string {
	switch o {
	case PutIfAbsent:
		return "ifAbsent"
	case PutIfPresent:
		return "ifPresent"
	default:
		return "always"
	}
}

// ExecOptions are the per-table execution settings handed to the store and
// the cursor.
type ExecOptions struct {
	// BatchSize is the number of rows requested per round-trip. Zero leaves
	// the choice to the store.
	BatchSize int
	// MaxResults caps the rows a cursor may yield. Zero disables the cap.
	MaxResults int
	// TagObjectIDs enables ObjectID tagging in the table's marshaller.
	TagObjectIDs bool
}

// PreparedStatement is an opaque handle returned by Store.Prepare.
type PreparedStatement interface {
	// Text returns the statement text the handle was prepared from.
	Text() string
}

// BatchSource yields the result rows of one executed statement.
type BatchSource interface {
	// Next returns the next batch. done reports that the store has no more
	// rows; a final batch may be returned together with done.
	Next(ctx context.Context) (rows []map[string]any, done bool, err error)
	// Close releases server-side resources. It is safe to call twice.
	Close() error
}

// DDLHandle tracks an asynchronous DDL operation.
type DDLHandle interface {
	// Wait blocks until the operation completes or ctx is done.
	Wait(ctx context.Context) error
}

// TableInfo is what a store reports about an existing table.
type TableInfo struct {
	Name  string
	Keys  *schema.KeySchema
	State string
}

// IndexInfo describes one secondary index.
type IndexInfo struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Store is the table store the persistence layer drives. Implementations
// translate these calls to one concrete driver; see package nosql.
//
// DescribeTable must report a missing table with an error matching
// ErrTableNotFound, and RunDDL or Wait a creation race with ErrTableExists.
type Store interface {
	// Prepare compiles statement text into a reusable handle.
	Prepare(ctx context.Context, text string) (PreparedStatement, error)

	// Execute opens a batch source over ps with bindings applied to this
	// execution only. ps may be executed concurrently.
	Execute(ctx context.Context, ps PreparedStatement, bindings map[string]any, opts ExecOptions) (BatchSource, error)

	// PutRow writes row into table. The boolean reports whether the
	// precondition held and the row was written.
	PutRow(ctx context.Context, table string, row schema.Document, opt PutOption) (bool, error)

	// GetRow reads the row with the given primary key. The boolean is false
	// when no such row exists.
	GetRow(ctx context.Context, table string, key schema.Document) (schema.Document, bool, error)

	// DeleteRow deletes the row with the given primary key and reports
	// whether it existed.
	DeleteRow(ctx context.Context, table string, key schema.Document) (bool, error)

	// RunDDL submits a DDL statement.
	RunDDL(ctx context.Context, text string) (DDLHandle, error)

	// DescribeTable returns the key schema of an existing table.
	DescribeTable(ctx context.Context, table string) (*TableInfo, error)

	// ListIndexes returns the secondary indexes of a table.
	ListIndexes(ctx context.Context, table string) ([]IndexInfo, error)
}
